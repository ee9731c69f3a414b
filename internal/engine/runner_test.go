package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/graph"
	"github.com/ShayCichocki/weave/pkg/models"
)

// stubAgent is an in-memory backend that records calls and tracks how many
// run concurrently.
type stubAgent struct {
	name string

	mu         sync.Mutex
	running    int
	maxRunning int
	calls      []string

	delay   time.Duration
	barrier *sync.WaitGroup
	respond func(prompt string) (*agent.Result, error)
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) IsAvailable(_ context.Context) bool { return true }

func (s *stubAgent) Run(_ context.Context, prompt string, _ *agent.RunOptions) (*agent.Result, error) {
	s.mu.Lock()
	s.running++
	if s.running > s.maxRunning {
		s.maxRunning = s.running
	}
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()

	if s.barrier != nil {
		s.barrier.Done()
		s.barrier.Wait()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	if s.respond != nil {
		return s.respond(prompt)
	}
	return &agent.Result{Content: "ok"}, nil
}

func newTestRunner(stub *stubAgent, opts ...RunnerOption) *Runner {
	return NewRunner(agent.NewCascade(nil, stub), opts...)
}

func TestRunSinglePlan(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(string) (*agent.Result, error) {
		return &agent.Result{Content: "hello", Model: "m1"}, nil
	}}
	runner := newTestRunner(stub)

	plan := models.NewSinglePlan("p1", "say hello", "stub")
	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
	result, ok := run.Context.Result("main")
	if !ok || result.Output != "hello" || result.Model != "m1" {
		t.Errorf("main result = %+v", result)
	}
	if run.Output() != "hello" {
		t.Errorf("Output() = %q, want hello", run.Output())
	}
	if len(run.Events) != 2 || run.Events[0].Type != ProgressStart || run.Events[1].Type != ProgressComplete {
		t.Errorf("events = %+v, want start then complete", run.Events)
	}
}

func TestRunPipelinePassesOutputsForward(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "analyze this") {
			return &agent.Result{Content: "alpha-out"}, nil
		}
		return &agent.Result{Content: "done"}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{
		ID:     "p",
		Mode:   models.PlanModePipeline,
		Prompt: "the task",
		Steps: []models.Step{
			{ID: "a", Agent: "stub", Prompt: "analyze this: {{prompt}}", OutputAs: "analysis"},
			{ID: "b", Agent: "stub", Prompt: "use {{analysis}} and {{a.content}}", DependsOn: []string{"a"}},
		},
	}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != RunCompleted {
		t.Fatalf("Status = %s, want completed", run.Status)
	}

	var bPrompt string
	for _, call := range stub.calls {
		if strings.Contains(call, "use ") {
			bPrompt = call
		}
	}
	if !strings.Contains(bPrompt, "use alpha-out and alpha-out") {
		t.Errorf("step b prompt should resolve both placeholders to alpha-out, got %q", bPrompt)
	}
}

func TestRunConcurrencyBoundNeverExceeded(t *testing.T) {
	stub := &stubAgent{name: "stub", delay: 10 * time.Millisecond}
	runner := newTestRunner(stub, WithConcurrency(3))

	plan := &models.Plan{ID: "p", Prompt: "t"}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"} {
		plan.Steps = append(plan.Steps, models.Step{ID: id, Agent: "stub", Prompt: "work " + id})
	}

	if _, err := runner.Run(context.Background(), plan, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stub.maxRunning > 3 {
		t.Errorf("observed %d concurrent steps, bound is 3", stub.maxRunning)
	}
}

func TestRunIndependentStepsOverlap(t *testing.T) {
	// Both steps block on a barrier of two; the run can only finish if the
	// scheduler actually overlaps them.
	var barrier sync.WaitGroup
	barrier.Add(2)
	stub := &stubAgent{name: "stub", barrier: &barrier}
	runner := newTestRunner(stub, WithConcurrency(2))

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "wa"},
		{ID: "b", Agent: "stub", Prompt: "wb"},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != RunCompleted {
		t.Errorf("Status = %s, want completed", run.Status)
	}
}

func TestRunFailureSkipsDependents(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "step-a") {
			return &agent.Result{Content: "partial"}, errors.New("backend exploded")
		}
		return &agent.Result{Content: "ok"}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "step-a"},
		{ID: "b", Agent: "stub", Prompt: "step-b", DependsOn: []string{"a"}},
		{ID: "c", Agent: "stub", Prompt: "step-c", DependsOn: []string{"b"}},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("step failure must not become a run error: %v", err)
	}

	if run.Status != RunFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
	a, _ := run.Context.Result("a")
	if a.Status != models.StepStatusFailed || !strings.Contains(a.Error, "backend exploded") {
		t.Errorf("a = %+v, want failed with error retained", a)
	}
	if a.Output != "partial" {
		t.Errorf("partial output %q should be preserved", a.Output)
	}
	for _, id := range []string{"b", "c"} {
		result, _ := run.Context.Result(id)
		if result.Status != models.StepStatusSkipped {
			t.Errorf("%s status = %s, want skipped", id, result.Status)
		}
	}
}

func TestRunAlwaysRunsAfterFailedDependency(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "step-a") {
			return nil, errors.New("boom")
		}
		return &agent.Result{Content: "cleaned up"}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "step-a"},
		{ID: "cleanup", Agent: "stub", Prompt: "step-cleanup", DependsOn: []string{"a"}, RunAlways: true},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, _ := run.Context.Result("cleanup")
	if result.Status != models.StepStatusCompleted || result.Output != "cleaned up" {
		t.Errorf("cleanup = %+v, want completed despite failed dependency", result)
	}
}

func TestRunConditionFalseSkips(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "step-a") {
			return nil, errors.New("boom")
		}
		return &agent.Result{Content: "ok"}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "step-a"},
		{
			ID:        "b",
			Agent:     "stub",
			Prompt:    "step-b",
			DependsOn: []string{"a"},
			RunAlways: true,
			Condition: "{{a.success}} == true",
		},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, _ := run.Context.Result("b")
	if result.Status != models.StepStatusSkipped || !strings.Contains(result.Error, "condition") {
		t.Errorf("b = %+v, want skipped on false condition", result)
	}
}

func TestRunCancellationSkipsPending(t *testing.T) {
	release := make(chan struct{})
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "step-a") {
			<-release
		}
		return &agent.Result{Content: "ok"}, nil
	}}
	runner := newTestRunner(stub, WithConcurrency(1))

	ctx, cancel := context.WithCancel(context.Background())
	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "step-a"},
		{ID: "b", Agent: "stub", Prompt: "step-b", DependsOn: []string{"a"}},
	}}

	done := make(chan *RunResult, 1)
	go func() {
		run, err := runner.Run(ctx, plan, nil)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		done <- run
	}()

	// Cancel while a is in flight, then let it finish.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	run := <-done
	if run == nil {
		t.Fatal("no run result")
	}
	b, _ := run.Context.Result("b")
	if b.Status != models.StepStatusSkipped || !strings.Contains(b.Error, "cancelled") {
		t.Errorf("b = %+v, want skipped as cancelled", b)
	}
	if run.Status != RunFailed {
		t.Errorf("Status = %s, want failed after cancellation", run.Status)
	}
}

func TestRunAdmitsInPlanOrder(t *testing.T) {
	stub := &stubAgent{name: "stub"}
	runner := newTestRunner(stub, WithConcurrency(1))

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "first", Agent: "stub", Prompt: "work first"},
		{ID: "second", Agent: "stub", Prompt: "work second"},
		{ID: "third", Agent: "stub", Prompt: "work third"},
	}}

	if _, err := runner.Run(context.Background(), plan, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(stub.calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(stub.calls), len(want))
	}
	for i, name := range want {
		if !strings.Contains(stub.calls[i], "work "+name) {
			t.Errorf("call %d = %q, want step %s", i, stub.calls[i], name)
		}
	}
}

func TestRunAggregatesUsage(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(string) (*agent.Result, error) {
		return &agent.Result{
			Content: "ok",
			Usage:   models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "wa"},
		{ID: "b", Agent: "stub", Prompt: "wb"},
		{ID: "c", Agent: "stub", Prompt: "wc"},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Usage.TotalTokens != 45 {
		t.Errorf("TotalTokens = %d, want 45", run.Usage.TotalTokens)
	}
}

func TestRunRecoversPanickingBackend(t *testing.T) {
	stub := &stubAgent{name: "stub", respond: func(prompt string) (*agent.Result, error) {
		if strings.Contains(prompt, "step-a") {
			panic("adapter bug")
		}
		return &agent.Result{Content: "ok"}, nil
	}}
	runner := newTestRunner(stub)

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "step-a"},
		{ID: "b", Agent: "stub", Prompt: "step-b"},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	a, _ := run.Context.Result("a")
	if a.Status != models.StepStatusFailed || !strings.Contains(a.Error, "panicked") {
		t.Errorf("a = %+v, want failed with panic captured", a)
	}
	b, _ := run.Context.Result("b")
	if b.Status != models.StepStatusCompleted {
		t.Errorf("b = %+v, an unrelated panic must not block it", b)
	}
}

func TestRunRejectsCyclicPlan(t *testing.T) {
	runner := newTestRunner(&stubAgent{name: "stub"})

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "wa", DependsOn: []string{"b"}},
		{ID: "b", Agent: "stub", Prompt: "wb", DependsOn: []string{"a"}},
	}}

	_, err := runner.Run(context.Background(), plan, nil)
	if !errors.Is(err, graph.ErrCycleDetected) {
		t.Errorf("err = %v, want ErrCycleDetected", err)
	}
}

func TestRunEventsKeepPerStepOrder(t *testing.T) {
	stub := &stubAgent{name: "stub", delay: 2 * time.Millisecond}
	runner := newTestRunner(stub, WithConcurrency(3))

	plan := &models.Plan{ID: "p", Prompt: "t", Steps: []models.Step{
		{ID: "a", Agent: "stub", Prompt: "wa"},
		{ID: "b", Agent: "stub", Prompt: "wb"},
		{ID: "c", Agent: "stub", Prompt: "wc", DependsOn: []string{"a", "b"}},
	}}

	run, err := runner.Run(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	starts := make(map[string]int)
	for i, ev := range run.Events {
		switch ev.Type {
		case ProgressStart:
			starts[ev.StepID] = i
		case ProgressComplete, ProgressError, ProgressSkip:
			startIdx, ok := starts[ev.StepID]
			if ev.Type != ProgressSkip && (!ok || startIdx >= i) {
				t.Errorf("step %s terminal event at %d before its start", ev.StepID, i)
			}
		}
	}
}
