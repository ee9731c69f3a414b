package models

import "time"

// StepStatus represents the current state of a step execution.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step's backend call failed.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step never ran because a dependency
	// failed or its condition evaluated false.
	StepStatusSkipped StepStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true once a step can no longer change state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// TokenUsage represents aggregated token usage information.
type TokenUsage struct {
	// InputTokens is the total input tokens used.
	InputTokens int64 `json:"inputTokens"`
	// OutputTokens is the total output tokens used.
	OutputTokens int64 `json:"outputTokens"`
	// TotalTokens is InputTokens + OutputTokens.
	TotalTokens int64 `json:"totalTokens"`
}

// Add returns the sum of two usage records.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// StepResult records the outcome of a single step execution.
// It is created when the step starts and is immutable once Status is terminal.
type StepResult struct {
	// StepID is the step this result belongs to.
	StepID string `json:"stepId"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// Output is the backend's output text, when completed.
	Output string `json:"output,omitempty"`
	// Error holds the failure or skip reason.
	Error string `json:"error,omitempty"`
	// Model is the backend model name that produced the output.
	Model string `json:"model,omitempty"`
	// Duration is how long the backend call took.
	Duration time.Duration `json:"duration"`
	// Usage is the token usage reported by the backend.
	Usage TokenUsage `json:"usage"`
	// StartedAt is when execution began.
	StartedAt time.Time `json:"startedAt"`
	// CompletedAt is when the step reached a terminal state.
	CompletedAt time.Time `json:"completedAt"`
}

// Terminal returns true once the result can no longer change.
func (r StepResult) Terminal() bool {
	return r.Status.Terminal()
}
