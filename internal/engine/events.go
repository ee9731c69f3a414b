package engine

import (
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

// ProgressType classifies a step lifecycle notification.
type ProgressType string

const (
	// ProgressStart fires when a step is admitted to a slot.
	ProgressStart ProgressType = "start"
	// ProgressComplete fires when a step finishes successfully.
	ProgressComplete ProgressType = "complete"
	// ProgressError fires when a step's backend call fails.
	ProgressError ProgressType = "error"
	// ProgressSkip fires when a step is skipped without running.
	ProgressSkip ProgressType = "skip"
)

// ProgressEvent is one step lifecycle notification delivered to the
// progress sink.
type ProgressEvent struct {
	// Type is the lifecycle transition.
	Type ProgressType
	// StepID identifies the step.
	StepID string
	// Data carries the error or skip reason, empty otherwise.
	Data string
}

// ProgressSink receives progress events as the run advances. The sink is
// called from the coordinator goroutine only, so per-step events arrive
// in lifecycle order and never concurrently.
type ProgressSink func(ProgressEvent)

// StepEvent is the recorded form of a progress event, kept in the run
// result for inspection and history.
type StepEvent struct {
	Type   ProgressType `json:"type"`
	StepID string       `json:"stepId"`
	Data   string       `json:"data,omitempty"`
	At     time.Time    `json:"at"`
}

// RunStatus is the overall outcome of a plan run.
type RunStatus string

const (
	// RunCompleted means every sink step completed.
	RunCompleted RunStatus = "completed"
	// RunFailed means at least one sink step failed or was skipped.
	// Partial results are still preserved in the run context.
	RunFailed RunStatus = "failed"
)

// RunResult is the outcome of one plan run.
type RunResult struct {
	// RunID uniquely identifies this run.
	RunID string `json:"runId"`
	// PlanID is the executed plan.
	PlanID string `json:"planId"`
	// Status is the overall outcome.
	Status RunStatus `json:"status"`
	// Context is the final execution context with all step results.
	Context models.ExecutionContext `json:"-"`
	// Events is the ordered step lifecycle record.
	Events []StepEvent `json:"events"`
	// Usage aggregates token usage across all steps.
	Usage models.TokenUsage `json:"usage"`
	// Sinks lists the steps whose outputs form the plan's final result.
	Sinks []string `json:"sinks"`
	// StartedAt and CompletedAt bound the run.
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Output returns the combined output of the completed sink steps, in plan
// order, separated by blank lines.
func (r *RunResult) Output() string {
	var out string
	for _, id := range r.Sinks {
		result, ok := r.Context.Result(id)
		if !ok || result.Status != models.StepStatusCompleted || result.Output == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += result.Output
	}
	return out
}
