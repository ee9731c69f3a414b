// Package stream decodes the line-oriented streaming output of
// text-completion backends into typed events.
package stream

import (
	"encoding/json"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// EventType represents the type of decoded stream event.
type EventType string

const (
	// EventInit carries the session ID and tool list from the first system line.
	EventInit EventType = "init"
	// EventTextDelta carries a fragment of assistant output text.
	EventTextDelta EventType = "text_delta"
	// EventToolCallStart indicates the backend began a tool invocation.
	EventToolCallStart EventType = "tool_call_start"
	// EventToolResult carries the outcome of a completed tool invocation.
	EventToolResult EventType = "tool_result"
	// EventFinalResult terminates the exchange with usage and cost data.
	EventFinalResult EventType = "final_result"
	// EventDecodeError reports a line that could not be parsed.
	EventDecodeError EventType = "decode_error"
)

// Event is one decoded stream event. Events are never mutated after emission.
type Event struct {
	// Type is the event type; it determines which fields are populated.
	Type EventType

	// SessionID and Tools are set on init events.
	SessionID string
	Tools     []string

	// CallID and ToolName identify a tool invocation; ToolArgs holds its
	// raw argument payload (tool-call-start only).
	CallID   string
	ToolName string
	ToolArgs json.RawMessage

	// Content carries text deltas, tool result content, or the final output.
	Content string
	// IsError marks tool results and final results that represent failures.
	IsError bool
	// Duration is the elapsed time of a tool invocation (tool-result only).
	Duration time.Duration

	// Usage, CostUSD, and PermissionDenials are set on final results.
	Usage             models.TokenUsage
	CostUSD           float64
	PermissionDenials []string

	// Raw preserves the offending input line for decode errors.
	Raw string
}
