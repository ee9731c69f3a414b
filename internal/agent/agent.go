// Package agent defines the backend contract and its adapters: external
// CLI subprocesses speaking stream-json, and the Anthropic API.
package agent

import (
	"context"
	"time"

	"github.com/ShayCichocki/weave/internal/stream"
	"github.com/ShayCichocki/weave/pkg/models"
)

// Result is the outcome of one backend invocation.
type Result struct {
	// Content is the final output text.
	Content string
	// Model is the model that produced the output, when reported.
	Model string
	// Duration is the wall-clock time of the invocation.
	Duration time.Duration
	// Usage is the token usage reported by the backend.
	Usage models.TokenUsage
	// CostUSD is the reported cost, zero when the backend does not report one.
	CostUSD float64
	// SessionID identifies the backend session, when reported.
	SessionID string
}

// RunOptions are the optional per-invocation parameters.
type RunOptions struct {
	// Model overrides the backend's default model.
	Model string
	// WorkDir is the working directory for subprocess backends.
	WorkDir string
	// Timeout bounds the invocation. Zero means no timeout.
	Timeout time.Duration
	// OnEvent, when set, observes each decoded stream event as it arrives.
	OnEvent func(stream.Event)
}

// Agent is a text-completion backend. Implementations are safe for
// concurrent use.
type Agent interface {
	// Name identifies the backend in plans and logs.
	Name() string
	// Run sends the prompt and blocks until the backend finishes or ctx is
	// cancelled. A non-nil Result is returned whenever output was produced,
	// even alongside an error.
	Run(ctx context.Context, prompt string, opts *RunOptions) (*Result, error)
	// IsAvailable reports whether the backend can currently serve requests.
	IsAvailable(ctx context.Context) bool
}

// withTimeout applies an optional timeout from RunOptions.
func withTimeout(ctx context.Context, opts *RunOptions) (context.Context, context.CancelFunc) {
	if opts != nil && opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}
