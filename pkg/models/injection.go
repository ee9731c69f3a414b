package models

// ContextSource identifies where a context fragment's raw text comes from.
type ContextSource string

const (
	// SourceTask injects the original task prompt.
	SourceTask ContextSource = "task"
	// SourceStep injects a specific prior step's output (requires StepID).
	SourceStep ContextSource = "step"
	// SourceSteps injects the concatenated outputs of all prior completed steps.
	SourceSteps ContextSource = "steps"
	// SourceFile injects externally supplied file context.
	SourceFile ContextSource = "file"
)

// InclusionMode controls how much of a fragment is injected.
type InclusionMode string

const (
	// IncludeFull injects the fragment unmodified.
	IncludeFull InclusionMode = "full"
	// IncludeSummary injects an abstractive summary of the fragment.
	IncludeSummary InclusionMode = "summary"
	// IncludeKeyPoints injects a key-point summary of the fragment.
	IncludeKeyPoints InclusionMode = "key-points"
	// IncludeNone excludes the fragment entirely.
	IncludeNone InclusionMode = "none"
)

// Fragment priorities, 1 = critical through 4 = low. Under budget pressure
// critical fragments are compressed, low-priority fragments are dropped.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// InjectionRule declares one candidate context fragment for a step's prompt.
type InjectionRule struct {
	// Source identifies the fragment's origin.
	Source ContextSource `json:"source" yaml:"source"`
	// StepID names the originating step when Source is "step".
	StepID string `json:"stepId,omitempty" yaml:"stepId,omitempty"`
	// Priority is 1 (critical) through 4 (low).
	Priority int `json:"priority" yaml:"priority"`
	// Mode controls how much of the fragment is injected. Empty means full.
	Mode InclusionMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Section tags the fragment in the rendered output.
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
}
