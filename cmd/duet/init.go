package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/duet/internal/config"
	"github.com/ShayCichocki/duet/internal/state"
)

var (
	initForce           bool
	initSkipClaudeCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Duet project",
	Long: `Initialize a directory for use with Duet.

This command sets up everything needed to run Duet:
  - Verifies prerequisites (claude CLI, API key)
  - Creates the .duet directory with a default config
  - Prepares the project state database
  - Adds .duet to .gitignore when a git repository is present

The directory argument is optional and defaults to the current directory.

Examples:
  duet init              # Initialize current directory
  duet init ./myproject  # Initialize specific directory
  duet init --force      # Reinitialize even if already set up`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initSkipClaudeCheck, "skip-claude-check", false, "Skip Claude CLI availability check")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Duet in %s...\n\n", absPath)

	duetDir := filepath.Join(absPath, ".duet")
	if _, err := os.Stat(duetDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	// Prerequisites
	if !initSkipClaudeCheck {
		if err := CheckClaudeCLI(); err != nil {
			printStatus("✗", "Claude Code CLI not found", color.FgRed)
			return err
		}
		printStatus("✓", "Claude Code CLI found", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (only needed for API mode)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	// Directory structure and default config
	if err := os.MkdirAll(filepath.Join(duetDir, "logs"), 0755); err != nil {
		return fmt.Errorf("creating .duet directory: %w", err)
	}
	printStatus("✓", "Created .duet directory structure", color.FgGreen)

	configPath := filepath.Join(duetDir, "config.yaml")
	if initForce {
		os.Remove(configPath)
	}
	if _, err := config.WriteProjectDefault(absPath); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	printStatus("✓", "Created .duet/config.yaml", color.FgGreen)

	// State database
	db, err := state.OpenProject(absPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	printStatus("✓", "Prepared state database", color.FgGreen)

	// Keep session state out of version control
	if updated, err := updateGitignore(absPath); err == nil && updated {
		printStatus("✓", "Updated .gitignore with Duet entries", color.FgGreen)
	}

	fmt.Printf("\n%s Duet initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  duet run \"<task>\"   # run a task with the agent pair")
	fmt.Println("  duet                # interactive mode")
	return nil
}

// printStatus prints a colored status line.
func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Printf("  %s %s\n", c.Sprint(symbol), message)
}

// updateGitignore appends .duet/ when the directory is a git repository
// and the entry is missing. Returns true if the file was modified.
func updateGitignore(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return false, nil
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if strings.Contains(string(existing), ".duet/") {
		return false, nil
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	entry := "\n# Duet session state\n.duet/\n"
	if len(existing) == 0 {
		entry = "# Duet session state\n.duet/\n"
	}
	if _, err := f.WriteString(entry); err != nil {
		return false, err
	}
	return true, nil
}
