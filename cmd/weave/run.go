package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/assembler"
	"github.com/ShayCichocki/weave/internal/config"
	"github.com/ShayCichocki/weave/internal/engine"
	"github.com/ShayCichocki/weave/internal/state"
	"github.com/ShayCichocki/weave/internal/templates"
	"github.com/ShayCichocki/weave/pkg/models"
)

var (
	runPlanFile    string
	runTemplate    string
	runMode        string
	runAgent       string
	runAgents      []string
	runConcurrency int
	runBudget      int
	runFormat      string
	runTimeout     time.Duration
	runVars        []string
	runNoHistory   bool
	runDebugLog    string
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute a plan, a template, or a one-off prompt",
	Long: `Run executes a plan against the configured backends.

The plan comes from --plan (a JSON plan file), --template (a saved
template), or an ad-hoc prompt shaped by --mode:

  single    one step on one backend (the default)
  compare   the same prompt on each backend given with --agents
  pipeline  an analyze/implement/review chain

Examples:
  weave run "summarize the main points of README.md"
  weave run --mode pipeline "add input validation to the parser"
  weave run --mode compare --agents claude,anthropic-api "explain CRDTs"
  weave run --plan release.json --var version=1.4.0`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "path to a JSON plan file")
	runCmd.Flags().StringVar(&runTemplate, "template", "", "name of a saved template")
	runCmd.Flags().StringVar(&runMode, "mode", "single", "ad-hoc plan shape: single, compare, or pipeline")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "backend for ad-hoc plans (default from config)")
	runCmd.Flags().StringSliceVar(&runAgents, "agents", nil, "backends for compare mode")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "max steps running at once (default from config)")
	runCmd.Flags().IntVar(&runBudget, "budget", 0, "context token budget per step (default from config)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "context render shape: tagged or markdown")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-step backend timeout (default from config)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "plan variable as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "skip recording this run")
	runCmd.Flags().StringVar(&runDebugLog, "debug-log", "", "write engine debug output to this file")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress output")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	plan, err := resolvePlan(cfg, args)
	if err != nil {
		return err
	}

	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	concurrency := cfg.Defaults.Concurrency
	if runConcurrency > 0 {
		concurrency = runConcurrency
	}
	budget := cfg.Defaults.TokenBudget
	if cmd.Flags().Changed("budget") {
		budget = runBudget
	}
	format := assembler.Format(cfg.Defaults.Format)
	if runFormat != "" {
		format = assembler.Format(runFormat)
	}
	if !format.Valid() {
		return fmt.Errorf("unknown format %q (want tagged or markdown)", format)
	}
	timeout := cfg.Timeouts.Step
	if cmd.Flags().Changed("timeout") {
		timeout = runTimeout
	}

	logger := engine.NopLogger()
	if runDebugLog != "" {
		logger, err = engine.NewDebugLogger(runDebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	sink := printProgress
	if runQuiet {
		sink = func(engine.ProgressEvent) {}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cascade := buildCascade(cfg)

	// Degradation summaries go through whichever backend the cascade
	// prefers; without one the assembler falls back to truncation.
	asm := assembler.New()
	if backend, err := cascade.Resolve(ctx, ""); err == nil {
		asm = assembler.New(assembler.WithSummarizer(agent.NewAgentSummarizer(backend, "")))
	}

	runner := engine.NewRunner(cascade,
		engine.WithAssembler(asm),
		engine.WithConcurrency(concurrency),
		engine.WithTokenBudget(budget),
		engine.WithRenderFormat(format),
		engine.WithStepTimeout(timeout),
		engine.WithProgressSink(sink),
		engine.WithLogger(logger),
	)

	run, err := runner.Run(ctx, plan, vars)
	if err != nil {
		return err
	}

	if cfg.History.Enabled && !runNoHistory {
		if err := saveHistory(cfg, plan, run); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not record run: %v\n", err)
		}
	}

	if output := run.Output(); output != "" {
		fmt.Println()
		fmt.Println(output)
	}

	fmt.Println()
	if run.Status != engine.RunCompleted {
		printStatus("✗", fmt.Sprintf("run %s failed (%d tokens)", run.RunID, run.Usage.TotalTokens), color.FgRed)
		return fmt.Errorf("run %s did not complete", run.RunID)
	}
	printStatus("✓", fmt.Sprintf("run %s completed in %s (%d tokens)",
		run.RunID, run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond), run.Usage.TotalTokens), color.FgGreen)
	return nil
}

// resolvePlan picks the plan source: an explicit file, a saved template,
// or an ad-hoc plan built from the prompt arguments.
func resolvePlan(cfg *config.Config, args []string) (*models.Plan, error) {
	if runPlanFile != "" && runTemplate != "" {
		return nil, fmt.Errorf("--plan and --template are mutually exclusive")
	}
	if runPlanFile != "" {
		return models.LoadPlan(runPlanFile)
	}
	if runTemplate != "" {
		store, err := templates.NewStore(templates.DefaultDir())
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(runTemplate)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("provide a prompt, --plan, or --template")
	}
	prompt := strings.Join(args, " ")

	backend := runAgent
	if backend == "" {
		backend = cfg.Defaults.Agent
	}
	id := "adhoc-" + uuid.New().String()[:8]

	switch runMode {
	case "single":
		return models.NewSinglePlan(id, prompt, backend), nil
	case "compare":
		if len(runAgents) < 2 {
			return nil, fmt.Errorf("compare mode needs at least two backends via --agents")
		}
		return models.NewComparePlan(id, prompt, runAgents), nil
	case "pipeline":
		return models.NewPipelinePlan(id, prompt, backend), nil
	default:
		return nil, fmt.Errorf("unknown mode %q (want single, compare, or pipeline)", runMode)
	}
}

// buildCascade assembles the backend cascade: configured subprocess
// backends first, then the claude CLI, then the Anthropic API as the
// final fallback.
func buildCascade(cfg *config.Config) *agent.Cascade {
	var agents []agent.Agent
	seen := make(map[string]bool)

	for _, b := range cfg.Backends {
		if b.Name == "" || b.Command == "" {
			continue
		}
		p := agent.NewProcessAgent(b.Name, b.Command, b.Args)
		if b.Model != "" {
			p.SetDefaultModel(b.Model)
		}
		agents = append(agents, p)
		seen[b.Name] = true
	}

	if !seen["claude"] {
		agents = append(agents, agent.NewClaudeCLI())
	}
	if !seen["anthropic-api"] {
		agents = append(agents, agent.NewAPIAgent(agent.APIConfig{
			APIKey: cfg.Anthropic.APIKey,
			Model:  cfg.Anthropic.Model,
		}))
	}

	return agent.NewCascade(nil, agents...)
}

// parseVars turns repeated key=value flags into a variable map.
func parseVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// saveHistory records the run in the local SQLite history.
func saveHistory(cfg *config.Config, plan *models.Plan, run *engine.RunResult) error {
	var db *state.DB
	var err error
	if cfg.History.Path != "" {
		db, err = state.Open(cfg.History.Path)
	} else {
		db, err = state.OpenDefault()
	}
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	if cfg.History.Keep > 0 {
		if _, err := db.PurgeOldRuns(cfg.History.Keep); err != nil {
			return err
		}
	}

	rec := state.RunRecord{
		ID:          run.RunID,
		PlanID:      run.PlanID,
		Mode:        string(plan.Mode),
		Prompt:      plan.Prompt,
		Status:      string(run.Status),
		Usage:       run.Usage,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	for _, step := range plan.Steps {
		result, ok := run.Context.Result(step.ID)
		if !ok {
			continue
		}
		rec.Steps = append(rec.Steps, state.StepRecord{
			StepID:      result.StepID,
			Status:      string(result.Status),
			Output:      result.Output,
			Error:       result.Error,
			Model:       result.Model,
			Duration:    result.Duration,
			Usage:       result.Usage,
			StartedAt:   result.StartedAt,
			CompletedAt: result.CompletedAt,
		})
	}

	return db.SaveRun(rec)
}

// printProgress renders one step lifecycle event.
func printProgress(ev engine.ProgressEvent) {
	switch ev.Type {
	case engine.ProgressStart:
		printStatus("→", ev.StepID, color.FgCyan)
	case engine.ProgressComplete:
		printStatus("✓", ev.StepID, color.FgGreen)
	case engine.ProgressError:
		printStatus("✗", fmt.Sprintf("%s: %s", ev.StepID, ev.Data), color.FgRed)
	case engine.ProgressSkip:
		printStatus("⚠", fmt.Sprintf("%s skipped: %s", ev.StepID, ev.Data), color.FgYellow)
	}
}

// printStatus prints a colored status symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
