package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/weave/internal/graph"
	"github.com/ShayCichocki/weave/pkg/models"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect and validate plan files",
}

var planCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a plan file and show its execution order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := models.LoadPlan(args[0])
		if err != nil {
			printStatus("✗", err.Error(), color.FgRed)
			return fmt.Errorf("plan check failed")
		}

		g := graph.New()
		if err := g.Build(plan.Steps); err != nil {
			printStatus("✗", err.Error(), color.FgRed)
			return fmt.Errorf("plan check failed")
		}

		order, err := g.TopologicalSort()
		if err != nil {
			printStatus("✗", err.Error(), color.FgRed)
			return fmt.Errorf("plan check failed")
		}

		printStatus("✓", fmt.Sprintf("%s: %d steps, no cycles", plan.ID, len(plan.Steps)), color.FgGreen)
		fmt.Printf("  order: %s\n", strings.Join(order, " -> "))
		fmt.Printf("  sinks: %s\n", strings.Join(g.Sinks(), ", "))
		return nil
	},
}

func init() {
	planCmd.AddCommand(planCheckCmd)
	rootCmd.AddCommand(planCmd)
}
