package main

import (
	"fmt"
	"os"

	"github.com/ShayCichocki/duet/internal/agent"
	"github.com/ShayCichocki/duet/internal/api"
	"github.com/ShayCichocki/duet/internal/config"
	"github.com/ShayCichocki/duet/internal/duo"
)

// buildExecutor selects the execution backend. The default spawns the
// claude CLI; DUET_USE_API=1 or anthropic.use_api switches to direct
// Anthropic API calls with the built-in tool loop.
func buildExecutor(cfg *config.Config) (duo.Executor, error) {
	useAPI := cfg.Anthropic.UseAPI || os.Getenv("DUET_USE_API") == "1"

	if useAPI {
		apiKey, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		client, err := api.NewClient(api.ClientConfig{
			APIKey:        apiKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		return api.NewExecutor(client, cfg.Anthropic.UseBedrock), nil
	}

	if err := CheckClaudeCLI(); err != nil {
		return nil, err
	}
	exec := agent.NewCLIExecutor()
	exec.WatchWorkspace = true
	return exec, nil
}

// CheckClaudeCLI verifies that the 'claude' CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckClaudeCLI() error {
	if err := agent.CheckCLI(); err != nil {
		return fmt.Errorf("claude CLI not found in PATH\n\n" +
			"Duet requires the Claude Code CLI to run agents.\n\n" +
			"Install it with:\n" +
			"  npm install -g @anthropic-ai/claude-code\n\n" +
			"Alternatively, set DUET_USE_API=1 to call the Anthropic API directly.")
	}
	return nil
}
