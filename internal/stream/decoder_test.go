package stream

import (
	"testing"
	"time"
)

// fakeClock returns a controllable time source.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func TestDecodeInitLine(t *testing.T) {
	d := NewDecoder()

	events := d.Feed(`{"type":"system","subtype":"init","session_id":"sess-1","tools":["Read","Bash"]}`)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventInit {
		t.Errorf("expected init event, got %s", events[0].Type)
	}
	if events[0].SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %q", events[0].SessionID)
	}
	if len(events[0].Tools) != 2 {
		t.Errorf("expected 2 tools, got %v", events[0].Tools)
	}

	if !d.Initialized() || d.SessionID() != "sess-1" {
		t.Errorf("decoder state not updated: initialized=%v session=%q", d.Initialized(), d.SessionID())
	}
}

func TestDecodeAssistantTextAndToolCall(t *testing.T) {
	d := NewDecoder()

	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"text","text":"thinking..."},` +
		`{"type":"tool_use","id":"call-1","name":"Read","input":{"file_path":"main.go"}}]}}`
	events := d.Feed(line)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventTextDelta || events[0].Content != "thinking..." {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Type != EventToolCallStart || events[1].CallID != "call-1" || events[1].ToolName != "Read" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if d.InFlight() != 1 {
		t.Errorf("expected 1 in-flight call, got %d", d.InFlight())
	}
}

func TestToolResultDurationMatchesClockGap(t *testing.T) {
	clock := newFakeClock()
	d := NewDecoder()
	d.SetClock(clock.now)

	d.Feed(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"call-1","name":"Bash","input":{}}]}}`)
	clock.advance(750 * time.Millisecond)
	events := d.Feed(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"call-1","content":"done","is_error":false}]}}`)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Type != EventToolResult {
		t.Fatalf("expected tool result, got %s", event.Type)
	}
	if event.Duration != 750*time.Millisecond {
		t.Errorf("expected 750ms duration, got %v", event.Duration)
	}
	if event.Content != "done" {
		t.Errorf("expected content %q, got %q", "done", event.Content)
	}
	if d.InFlight() != 0 {
		t.Errorf("call id should be removed from in-flight state, have %d", d.InFlight())
	}
}

func TestToolResultArrayContent(t *testing.T) {
	d := NewDecoder()

	d.Feed(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"Grep","input":{}}]}}`)
	events := d.Feed(`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"c1","content":[{"type":"text","text":"line one"},{"type":"text","text":" line two"}]}]}}`)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "line one line two" {
		t.Errorf("unexpected content: %q", events[0].Content)
	}
}

func TestDecodeFinalResult(t *testing.T) {
	d := NewDecoder()

	line := `{"type":"result","subtype":"success","result":"all done",` +
		`"usage":{"input_tokens":120,"output_tokens":48},"total_cost_usd":0.0042,` +
		`"permission_denials":[{"tool_name":"Write"}]}`
	events := d.Feed(line)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Type != EventFinalResult {
		t.Fatalf("expected final result, got %s", event.Type)
	}
	if event.IsError {
		t.Error("success result should not be an error")
	}
	if event.Content != "all done" {
		t.Errorf("unexpected content: %q", event.Content)
	}
	if event.Usage.TotalTokens != 168 {
		t.Errorf("expected 168 total tokens, got %d", event.Usage.TotalTokens)
	}
	if event.CostUSD != 0.0042 {
		t.Errorf("unexpected cost: %f", event.CostUSD)
	}
	if len(event.PermissionDenials) != 1 || event.PermissionDenials[0] != "Write" {
		t.Errorf("unexpected denials: %v", event.PermissionDenials)
	}
}

func TestDecodeErrorResult(t *testing.T) {
	d := NewDecoder()

	events := d.Feed(`{"type":"result","subtype":"error_max_turns","result":"ran out of turns"}`)
	if len(events) != 1 || events[0].Type != EventFinalResult {
		t.Fatalf("expected final result, got %+v", events)
	}
	if !events[0].IsError {
		t.Error("error subtype should mark the result as an error")
	}
}

func TestMalformedLineEmitsExactlyOneDecodeError(t *testing.T) {
	d := NewDecoder()
	d.Feed(`{"type":"system","subtype":"init","session_id":"s1","tools":["Read"]}`)
	d.Feed(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"Read","input":{}}]}}`)

	before := d.InFlight()

	events := d.Feed(`this is not json at all {{{`)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	if events[0].Type != EventDecodeError {
		t.Errorf("expected decode error, got %s", events[0].Type)
	}
	if events[0].Raw != `this is not json at all {{{` {
		t.Errorf("raw line not preserved: %q", events[0].Raw)
	}

	// No other decoder state may change.
	if d.InFlight() != before {
		t.Errorf("in-flight state changed: %d -> %d", before, d.InFlight())
	}
	if !d.Initialized() || d.SessionID() != "s1" {
		t.Error("session state changed after decode error")
	}
}

func TestUnknownTypeIsDecodeError(t *testing.T) {
	d := NewDecoder()
	events := d.Feed(`{"type":"telemetry","data":42}`)
	if len(events) != 1 || events[0].Type != EventDecodeError {
		t.Fatalf("expected one decode error, got %+v", events)
	}
}

func TestFeedSplitsMultiLineBlocks(t *testing.T) {
	d := NewDecoder()

	block := `{"type":"system","subtype":"init","session_id":"s1"}` + "\n" +
		`{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}` + "\n" +
		"\n" +
		`{"type":"result","subtype":"success","result":"hi"}`
	events := d.Feed(block)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventInit || events[1].Type != EventTextDelta || events[2].Type != EventFinalResult {
		t.Errorf("unexpected event sequence: %s %s %s", events[0].Type, events[1].Type, events[2].Type)
	}
}

func TestReset(t *testing.T) {
	d := NewDecoder()
	d.Feed(`{"type":"system","subtype":"init","session_id":"s1"}`)
	d.Feed(`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"Read","input":{}}]}}`)

	d.Reset()

	if d.Initialized() || d.SessionID() != "" || d.InFlight() != 0 {
		t.Errorf("reset did not clear state: init=%v session=%q inflight=%d",
			d.Initialized(), d.SessionID(), d.InFlight())
	}
}
