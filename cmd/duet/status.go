package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/duet/internal/state"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Show recent session history",
	Long: `Display recent Duet sessions from the project state database.

Without arguments, lists the most recent sessions with their outcome,
iteration count, and cost. With a session ID (or unique prefix), shows
the iteration-by-iteration history of that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of sessions to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No sessions yet. Run 'duet run <task>' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return displaySessionDetail(db, args[0])
	}
	return displaySessionList(db)
}

func displaySessionList(db *state.DB) error {
	sessions, err := db.ListSessions(statusLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Run 'duet run <task>' to start.")
		return nil
	}

	fmt.Printf("%-10s %-14s %-6s %-10s %-10s %s\n", "SESSION", "OUTCOME", "ITERS", "COST", "WHEN", "TASK")
	for _, s := range sessions {
		fmt.Printf("%-10s %-14s %-6d $%-9.4f %-10s %s\n",
			shortID(s.ID),
			colorOutcome(s.Outcome),
			s.Iterations,
			s.Cost,
			formatAge(s.StartedAt),
			truncate(s.Task, 50))
	}
	return nil
}

func displaySessionDetail(db *state.DB, prefix string) error {
	id, err := db.FindSession(prefix)
	if err != nil {
		return err
	}

	summary, err := db.Summary(id)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s: %s\n", shortID(id), colorOutcome(string(summary.Outcome)))
	fmt.Printf("  iterations: %d (success rate %.0f%%), handoffs: %d, messages: %d\n",
		summary.TotalIterations, summary.SuccessRate*100, summary.TotalHandoffs, summary.TotalMessages)
	fmt.Printf("  duration: %s, cost: $%.4f\n",
		summary.TotalDuration.Round(time.Second), summary.TotalCost)

	iterations, err := db.SessionIterations(id)
	if err != nil {
		return err
	}

	fmt.Println()
	for _, it := range iterations {
		line := fmt.Sprintf("  %2d [%s] %s (%s)", it.Number, it.Agent, truncate(it.Summary, 60), it.Duration.Round(time.Millisecond))
		if it.ErrorText != "" {
			line += " " + color.RedString("error: %s", truncate(it.ErrorText, 40))
		}
		fmt.Println(line)
	}
	return nil
}

func colorOutcome(outcome string) string {
	switch outcome {
	case "completed":
		return color.GreenString(outcome)
	case "running":
		return color.CyanString(outcome)
	case "aborted", "loop_detected":
		return color.RedString(outcome)
	default:
		return color.YellowString(outcome)
	}
}

func formatAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
