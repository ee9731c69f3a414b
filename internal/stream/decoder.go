package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// wire structures mirror the backend's stream-json line format.

type wireEvent struct {
	Type              string        `json:"type"`
	Subtype           string        `json:"subtype"`
	SessionID         string        `json:"session_id"`
	Tools             []string      `json:"tools"`
	Message           *wireMessage  `json:"message"`
	Result            string        `json:"result"`
	IsError           bool          `json:"is_error"`
	Usage             *wireUsage    `json:"usage"`
	TotalCostUSD      float64       `json:"total_cost_usd"`
	PermissionDenials []wireDenial  `json:"permission_denials"`
}

type wireMessage struct {
	Model   string      `json:"model"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type wireUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type wireDenial struct {
	ToolName string `json:"tool_name"`
}

// Decoder incrementally decodes a backend's stream-json output.
// Feed it one line (or a larger block, split internally on line breaks)
// at a time; it carries session state between calls so tool-call durations
// can be computed when the matching result arrives.
//
// Decoding never fails upward: malformed input yields a decode-error event
// and the decoder moves on to the next line.
type Decoder struct {
	initialized bool
	sessionID   string
	tools       []string
	// inflight maps tool-call IDs to their start time.
	inflight map[string]time.Time
	// now is injectable for deterministic duration tests.
	now func() time.Time
}

// NewDecoder creates a Decoder with a fresh state.
func NewDecoder() *Decoder {
	return &Decoder{
		inflight: make(map[string]time.Time),
		now:      time.Now,
	}
}

// SetClock overrides the decoder's time source.
func (d *Decoder) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Reset clears all decoding state.
func (d *Decoder) Reset() {
	d.initialized = false
	d.sessionID = ""
	d.tools = nil
	d.inflight = make(map[string]time.Time)
}

// Initialized reports whether an init line has been seen.
func (d *Decoder) Initialized() bool {
	return d.initialized
}

// SessionID returns the session ID from the init line, if any.
func (d *Decoder) SessionID() string {
	return d.sessionID
}

// Tools returns the tool list from the init line, if any.
func (d *Decoder) Tools() []string {
	return d.tools
}

// InFlight returns the number of tool calls awaiting a result.
func (d *Decoder) InFlight() int {
	return len(d.inflight)
}

// Feed decodes a chunk of raw backend output and returns zero or more
// events. The chunk may contain several newline-separated lines.
func (d *Decoder) Feed(input string) []Event {
	var events []Event
	for _, line := range strings.Split(input, "\n") {
		events = append(events, d.feedLine(line)...)
	}
	return events
}

// feedLine decodes a single line. A line that fails to parse as a
// well-formed event produces exactly one decode-error event and changes
// no other decoder state.
func (d *Decoder) feedLine(line string) []Event {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var wire wireEvent
	if err := json.Unmarshal([]byte(line), &wire); err != nil {
		return []Event{{Type: EventDecodeError, Raw: line}}
	}

	switch wire.Type {
	case "system":
		return d.decodeSystem(wire)
	case "assistant":
		return d.decodeAssistant(wire)
	case "user":
		return d.decodeUser(wire)
	case "result":
		return d.decodeResult(wire)
	default:
		return []Event{{Type: EventDecodeError, Raw: line}}
	}
}

// decodeSystem handles the initialization line.
func (d *Decoder) decodeSystem(wire wireEvent) []Event {
	if wire.Subtype != "init" {
		// Non-init system lines carry nothing the engine consumes.
		return nil
	}

	d.initialized = true
	d.sessionID = wire.SessionID
	d.tools = wire.Tools

	return []Event{{
		Type:      EventInit,
		SessionID: wire.SessionID,
		Tools:     wire.Tools,
	}}
}

// decodeAssistant extracts text fragments and tool-call starts from an
// assistant line. Each tool call is registered in the in-flight map.
func (d *Decoder) decodeAssistant(wire wireEvent) []Event {
	if wire.Message == nil {
		return nil
	}

	var events []Event
	for _, block := range wire.Message.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				events = append(events, Event{
					Type:    EventTextDelta,
					Content: block.Text,
				})
			}
		case "tool_use":
			d.inflight[block.ID] = d.now()
			events = append(events, Event{
				Type:     EventToolCallStart,
				CallID:   block.ID,
				ToolName: block.Name,
				ToolArgs: block.Input,
			})
		}
	}
	return events
}

// decodeUser extracts tool results, matching each against its in-flight
// start time to compute the elapsed duration.
func (d *Decoder) decodeUser(wire wireEvent) []Event {
	if wire.Message == nil {
		return nil
	}

	var events []Event
	for _, block := range wire.Message.Content {
		if block.Type != "tool_result" {
			continue
		}

		var duration time.Duration
		if started, ok := d.inflight[block.ToolUseID]; ok {
			duration = d.now().Sub(started)
			delete(d.inflight, block.ToolUseID)
		}

		events = append(events, Event{
			Type:     EventToolResult,
			CallID:   block.ToolUseID,
			Content:  decodeBlockContent(block.Content),
			IsError:  block.IsError,
			Duration: duration,
		})
	}
	return events
}

// decodeResult handles the terminal result line.
func (d *Decoder) decodeResult(wire wireEvent) []Event {
	event := Event{
		Type:    EventFinalResult,
		Content: wire.Result,
		IsError: wire.IsError || (wire.Subtype != "" && wire.Subtype != "success"),
		CostUSD: wire.TotalCostUSD,
	}

	if wire.Usage != nil {
		event.Usage = models.TokenUsage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
			TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
		}
	}

	for _, denial := range wire.PermissionDenials {
		if denial.ToolName != "" {
			event.PermissionDenials = append(event.PermissionDenials, denial.ToolName)
		}
	}

	return []Event{event}
}

// decodeBlockContent renders a tool result payload to text. The backend
// emits either a plain string or an array of content blocks.
func decodeBlockContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []wireBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}

	return string(raw)
}
