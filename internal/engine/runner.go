// Package engine schedules plan steps onto backends with bounded
// concurrency, honoring dependency order, conditions, and cancellation.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/assembler"
	"github.com/ShayCichocki/weave/internal/graph"
	"github.com/ShayCichocki/weave/pkg/models"
)

// DefaultConcurrency is the maximum number of steps running at once.
const DefaultConcurrency = 5

// Runner executes plans. A single coordinator goroutine owns all
// scheduling state; worker goroutines only run backend calls and report
// back over a channel, so no scheduling field needs a lock.
type Runner struct {
	cascade     *agent.Cascade
	assembler   *assembler.Assembler
	concurrency int
	tokenBudget int
	format      assembler.Format
	stepTimeout time.Duration
	sink        ProgressSink
	log         *DebugLogger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency sets the step concurrency bound.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithAssembler replaces the context assembler.
func WithAssembler(a *assembler.Assembler) RunnerOption {
	return func(r *Runner) {
		if a != nil {
			r.assembler = a
		}
	}
}

// WithTokenBudget sets the per-step context token budget.
// Zero means unlimited.
func WithTokenBudget(tokens int) RunnerOption {
	return func(r *Runner) { r.tokenBudget = tokens }
}

// WithRenderFormat sets the context render shape.
func WithRenderFormat(f assembler.Format) RunnerOption {
	return func(r *Runner) {
		if f.Valid() {
			r.format = f
		}
	}
}

// WithStepTimeout bounds each backend call. Zero means no timeout.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.stepTimeout = d }
}

// WithProgressSink sets the progress callback.
func WithProgressSink(sink ProgressSink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner creates a Runner resolving backends through the given cascade.
func NewRunner(cascade *agent.Cascade, opts ...RunnerOption) *Runner {
	r := &Runner{
		cascade:     cascade,
		assembler:   assembler.New(),
		concurrency: DefaultConcurrency,
		format:      assembler.FormatTagged,
		log:         NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stepOutcome is a worker's report back to the coordinator.
type stepOutcome struct {
	result models.StepResult
	// outputAs is the named output binding, empty unless the step completed.
	outputAs string
}

// Run executes a plan to completion. It returns an error only for invalid
// plans (structural problems or dependency cycles); step failures are
// recorded in the result, never returned as errors, and never abort the
// remaining runnable steps.
func (r *Runner) Run(ctx context.Context, plan *models.Plan, vars map[string]string) (*RunResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	g := graph.New()
	if err := g.Build(plan.Steps); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	run := &RunResult{
		RunID:     uuid.New().String()[:8],
		PlanID:    plan.ID,
		Sinks:     g.Sinks(),
		StartedAt: time.Now(),
	}
	r.log.Log("[engine] run %s: plan %s, %d steps, concurrency %d", run.RunID, plan.ID, g.Size(), r.concurrency)

	ec := models.NewExecutionContext(plan.Prompt, vars)

	order := g.StepIDs()
	pending := make(map[string]bool, len(order))
	for _, id := range order {
		pending[id] = true
	}

	resultCh := make(chan stepOutcome)
	inFlight := 0

	emit := func(t ProgressType, stepID, data string) {
		run.Events = append(run.Events, StepEvent{Type: t, StepID: stepID, Data: data, At: time.Now()})
		if r.sink != nil {
			r.sink(ProgressEvent{Type: t, StepID: stepID, Data: data})
		}
		r.log.Log("[engine] run %s: %s %s %s", run.RunID, t, stepID, data)
	}

	skip := func(id, reason string) {
		delete(pending, id)
		now := time.Now()
		ec = ec.WithResult(models.StepResult{
			StepID:      id,
			Status:      models.StepStatusSkipped,
			Error:       reason,
			StartedAt:   now,
			CompletedAt: now,
		}, "")
		emit(ProgressSkip, id, reason)
	}

	// admit walks pending steps in plan order, skipping the unrunnable and
	// starting the ready ones while slots remain. Skips can unblock further
	// skips, so it loops until a full pass changes nothing.
	admit := func() {
		for {
			progressed := false
			for _, id := range order {
				if !pending[id] {
					continue
				}

				if ctx.Err() != nil {
					skip(id, "run cancelled")
					progressed = true
					continue
				}

				step := g.Step(id)
				ready, blocked := depState(ec, g.Dependencies(id))
				if !ready {
					continue
				}
				if blocked != "" && !step.RunAlways {
					skip(id, "dependency "+blocked+" did not complete")
					progressed = true
					continue
				}
				if step.Condition != "" && !ec.EvaluateCondition(step.Condition) {
					skip(id, "condition not met: "+step.Condition)
					progressed = true
					continue
				}
				if inFlight >= r.concurrency {
					// Slots exhausted; keep scanning so later skips still land.
					continue
				}

				delete(pending, id)
				inFlight++
				emit(ProgressStart, id, "")
				go r.executeStep(ctx, *step, ec, resultCh)
				progressed = true
			}
			if !progressed {
				return
			}
		}
	}

	for {
		admit()
		if inFlight == 0 {
			// Nothing running and nothing admittable: the graph is acyclic,
			// so pending is empty here.
			break
		}

		outcome := <-resultCh
		inFlight--
		ec = ec.WithResult(outcome.result, outcome.outputAs)
		if outcome.result.Status == models.StepStatusCompleted {
			emit(ProgressComplete, outcome.result.StepID, "")
		} else {
			emit(ProgressError, outcome.result.StepID, outcome.result.Error)
		}
	}

	run.Context = ec
	run.CompletedAt = time.Now()
	run.Status = RunCompleted
	for _, id := range run.Sinks {
		if result, ok := ec.Result(id); !ok || result.Status != models.StepStatusCompleted {
			run.Status = RunFailed
			break
		}
	}
	for _, result := range ec.Results {
		run.Usage = run.Usage.Add(result.Usage)
	}

	r.log.Log("[engine] run %s: %s, %d tokens", run.RunID, run.Status, run.Usage.TotalTokens)
	return run, nil
}

// executeStep runs one step against its backend and reports the terminal
// result. A panic in the backend adapter fails the step instead of
// crashing the run.
func (r *Runner) executeStep(ctx context.Context, step models.Step, ec models.ExecutionContext, out chan<- stepOutcome) {
	result := models.StepResult{
		StepID:    step.ID,
		Status:    models.StepStatusRunning,
		StartedAt: time.Now(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Status = models.StepStatusFailed
			result.Error = fmt.Sprintf("step panicked: %v", rec)
		}
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)

		outputAs := ""
		if result.Status == models.StepStatusCompleted {
			outputAs = step.OutputAs
		}
		out <- stepOutcome{result: result, outputAs: outputAs}
	}()

	backend, err := r.cascade.Resolve(ctx, step.Agent)
	if err != nil {
		result.Status = models.StepStatusFailed
		result.Error = err.Error()
		return
	}

	prompt := r.buildPrompt(ctx, step, ec)
	r.log.Log("[engine] step %s: %s via %s, %d prompt chars", step.ID, step.Action, backend.Name(), len(prompt))

	runRes, err := backend.Run(ctx, prompt, &agent.RunOptions{Timeout: r.stepTimeout})
	if runRes != nil {
		// Keep partial output and usage even when the call failed.
		result.Output = runRes.Content
		result.Model = runRes.Model
		result.Usage = runRes.Usage
	}
	if err != nil {
		result.Status = models.StepStatusFailed
		result.Error = err.Error()
		return
	}
	result.Status = models.StepStatusCompleted
}

// buildPrompt renders the step's context sections and resolves its prompt
// template against the execution context.
func (r *Runner) buildPrompt(ctx context.Context, step models.Step, ec models.ExecutionContext) string {
	rules := assembler.RulesForStep(step)
	// A step that inlines the task via {{prompt}} already carries it;
	// a second task section would just duplicate the text.
	if strings.Contains(step.Prompt, "{{prompt}}") {
		rules = withoutTaskRule(rules)
	}

	assembled := r.assembler.Assemble(ctx, rules, ec, assembler.Options{
		Budget: r.tokenBudget,
		Format: r.format,
	})
	if assembled.Overflowed {
		r.log.Log("[engine] step %s: context overflowed the %d-token budget", step.ID, r.tokenBudget)
	}

	body := step.Prompt
	if body == "" {
		body = "{{prompt}}"
	}
	body = ec.Substitute(body)

	if assembled.Text == "" {
		return body
	}
	return assembled.Text + "\n\n" + body
}

// withoutTaskRule filters out task-source injection rules.
func withoutTaskRule(rules []models.InjectionRule) []models.InjectionRule {
	filtered := make([]models.InjectionRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Source != models.SourceTask {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}

// depState reports whether all dependencies are terminal and, when they
// are, names the first one that did not complete.
func depState(ec models.ExecutionContext, deps []string) (ready bool, blocked string) {
	for _, depID := range deps {
		result, ok := ec.Result(depID)
		if !ok || !result.Terminal() {
			return false, ""
		}
		if result.Status != models.StepStatusCompleted && blocked == "" {
			blocked = depID
		}
	}
	return true, blocked
}
