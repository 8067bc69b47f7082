package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "Dual-Agent Orchestration Engine",
	Long: `Duet orchestrates a pair of Claude Code agents on a single task.

A manager agent plans and reviews while a worker agent implements.
Control alternates between them via explicit handoffs, with loop
detection, failure recovery, and a single-agent fallback when the
pair cannot make progress.

With no arguments, launches interactive mode where you type the task
and watch the session unfold in a TUI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
