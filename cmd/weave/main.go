package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Plan-driven orchestration across AI backends",
	Long: `Weave executes plans of dependent steps against AI backends.

Steps form a dependency graph and run with bounded concurrency. Each
step's prompt is assembled from earlier step outputs under a token
budget, and outputs flow forward through named bindings.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
