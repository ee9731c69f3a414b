// Package models defines the core data types shared across weave:
// plans, steps, step results, and the execution context.
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PlanMode describes how a plan's steps relate to each other.
type PlanMode string

const (
	// PlanModeSingle runs one step against one backend.
	PlanModeSingle PlanMode = "single"
	// PlanModeCompare runs the same prompt against several backends in parallel.
	PlanModeCompare PlanMode = "compare"
	// PlanModePipeline chains steps through dependencies.
	PlanModePipeline PlanMode = "pipeline"
)

// Valid returns true if the mode is a known value.
func (m PlanMode) Valid() bool {
	switch m {
	case PlanModeSingle, PlanModeCompare, PlanModePipeline:
		return true
	default:
		return false
	}
}

// AgentAuto is the pseudo backend name that defers backend selection
// to the capability cascade.
const AgentAuto = "auto"

// Plan is a DAG of steps plus metadata, the unit of scheduling.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id" yaml:"id"`
	// Mode describes the plan shape (single, compare, pipeline).
	Mode PlanMode `json:"mode" yaml:"mode"`
	// Prompt is the original task prompt the plan was built for.
	Prompt string `json:"prompt" yaml:"prompt"`
	// Steps is the ordered list of steps to execute.
	Steps []Step `json:"steps" yaml:"steps"`
	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// Step is one unit of work in a plan, bound to one backend invocation.
type Step struct {
	// ID is the step identifier, unique within the plan.
	ID string `json:"id" yaml:"id"`
	// Agent names the target backend, or "auto" for cascade selection.
	Agent string `json:"agent" yaml:"agent"`
	// Action is a free-form tag describing the kind of work (analyze, implement, review).
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	// Prompt is the prompt template; placeholders are resolved against the
	// execution context at run time.
	Prompt string `json:"prompt" yaml:"prompt"`
	// DependsOn lists step IDs that must reach a terminal state before this step runs.
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	// OutputAs binds the step's output to a named slot in the execution context.
	OutputAs string `json:"outputAs,omitempty" yaml:"outputAs,omitempty"`
	// Role selects default context injection rules when InjectionRules is empty.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	// RunAlways runs the step even when a dependency failed.
	RunAlways bool `json:"runAlways,omitempty" yaml:"runAlways,omitempty"`
	// Condition guards execution; when it evaluates false the step is skipped.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	// InjectionRules override the role defaults for context assembly.
	InjectionRules []InjectionRule `json:"injectionRules,omitempty" yaml:"injectionRules,omitempty"`
}

// Validate checks structural plan invariants: a known mode, non-empty step
// IDs unique within the plan, and dependencies that reference known steps.
// Cycle detection is the dependency graph's job, not Validate's.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %s has no steps", p.ID)
	}
	if p.Mode != "" && !p.Mode.Valid() {
		return fmt.Errorf("plan %s has unknown mode %q", p.ID, p.Mode)
	}

	seen := make(map[string]bool, len(p.Steps))
	for _, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("plan %s contains a step with an empty id", p.ID)
		}
		if seen[step.ID] {
			return fmt.Errorf("plan %s contains duplicate step id %s", p.ID, step.ID)
		}
		seen[step.ID] = true
	}

	for _, step := range p.Steps {
		for _, depID := range step.DependsOn {
			if !seen[depID] {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
		}
	}

	return nil
}

// Step returns the step with the given ID, or nil if not found.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// LoadPlan reads and validates a plan description from a JSON file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	if plan.Mode == "" {
		plan.Mode = PlanModePipeline
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return &plan, nil
}

// NewSinglePlan builds a one-step plan running prompt against a single backend.
func NewSinglePlan(id, prompt, agent string) *Plan {
	return &Plan{
		ID:     id,
		Mode:   PlanModeSingle,
		Prompt: prompt,
		Steps: []Step{
			{ID: "main", Agent: agent, Action: "respond", Prompt: "{{prompt}}"},
		},
		CreatedAt: time.Now(),
	}
}

// NewComparePlan builds a plan that runs the same prompt against each of the
// given backends in parallel.
func NewComparePlan(id, prompt string, agents []string) *Plan {
	plan := &Plan{
		ID:        id,
		Mode:      PlanModeCompare,
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}
	for _, agent := range agents {
		plan.Steps = append(plan.Steps, Step{
			ID:     "compare-" + agent,
			Agent:  agent,
			Action: "respond",
			Prompt: "{{prompt}}",
		})
	}
	return plan
}

// NewPipelinePlan builds a three-stage analyze/implement/review pipeline.
// The stages run on the given backend (or "auto" when empty).
func NewPipelinePlan(id, prompt, agent string) *Plan {
	if agent == "" {
		agent = AgentAuto
	}
	return &Plan{
		ID:     id,
		Mode:   PlanModePipeline,
		Prompt: prompt,
		Steps: []Step{
			{
				ID:       "analyze",
				Agent:    agent,
				Action:   "analyze",
				Role:     "analyzer",
				Prompt:   "Analyze the following task and outline an approach:\n\n{{prompt}}",
				OutputAs: "analysis",
			},
			{
				ID:        "implement",
				Agent:     agent,
				Action:    "implement",
				Role:      "implementer",
				Prompt:    "Using this analysis:\n\n{{analysis}}\n\nComplete the task: {{prompt}}",
				DependsOn: []string{"analyze"},
				OutputAs:  "draft",
			},
			{
				ID:        "review",
				Agent:     agent,
				Action:    "review",
				Role:      "reviewer",
				Prompt:    "Review the following result for the task {{prompt}}:\n\n{{draft}}",
				DependsOn: []string{"implement"},
			},
		},
		CreatedAt: time.Now(),
	}
}
