package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/weave/internal/config"
	"github.com/ShayCichocki/weave/internal/state"
	"github.com/ShayCichocki/weave/pkg/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recent runs, or one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistoryDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			return showRun(db, args[0])
		}
		return listRuns(db, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func openHistoryDB() (*state.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var db *state.DB
	if cfg.History.Path != "" {
		db, err = state.Open(cfg.History.Path)
	} else {
		db, err = state.OpenDefault()
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func listRuns(db *state.DB, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		symbol, attr := statusMark(run.Status)
		printStatus(symbol, fmt.Sprintf("%s  %-10s %-8s %s  %s",
			run.ID, run.PlanID, run.Mode,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			truncatePrompt(run.Prompt, 60)), attr)
	}
	return nil
}

func showRun(db *state.DB, id string) error {
	run, err := db.GetRun(id)
	if err != nil {
		return err
	}

	symbol, attr := statusMark(run.Status)
	printStatus(symbol, fmt.Sprintf("run %s (%s, %s)", run.ID, run.PlanID, run.Mode), attr)
	fmt.Printf("  prompt:  %s\n", truncatePrompt(run.Prompt, 80))
	fmt.Printf("  started: %s\n", run.StartedAt.Local().Format(time.RFC1123))
	fmt.Printf("  tokens:  %d in / %d out\n", run.Usage.InputTokens, run.Usage.OutputTokens)
	fmt.Println()

	for _, step := range run.Steps {
		symbol, attr := statusMark(step.Status)
		detail := step.Duration.Round(time.Millisecond).String()
		if step.Model != "" {
			detail += ", " + step.Model
		}
		if step.Error != "" {
			detail += ", " + step.Error
		}
		printStatus(symbol, fmt.Sprintf("%s (%s)", step.StepID, detail), attr)
	}
	return nil
}

func statusMark(status string) (string, color.Attribute) {
	switch status {
	case string(models.StepStatusCompleted), string(models.StepStatusRunning):
		return "✓", color.FgGreen
	case string(models.StepStatusSkipped):
		return "⚠", color.FgYellow
	default:
		return "✗", color.FgRed
	}
}

func truncatePrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
