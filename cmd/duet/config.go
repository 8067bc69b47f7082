package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/duet/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Duet configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/duet/config.yaml
Project-specific overrides can be placed in .duet/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.use_api: %t\n", cfg.Anthropic.UseAPI)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("models.reliable: %s\n", orDefault(cfg.Models.Reliable))
	fmt.Printf("models.standard: %s\n", orDefault(cfg.Models.Standard))
	fmt.Printf("models.advanced: %s\n", orDefault(cfg.Models.Advanced))
	fmt.Printf("orchestration.max_iterations: %d\n", cfg.Orchestration.MaxIterations)
	fmt.Printf("orchestration.max_retries: %d\n", cfg.Orchestration.MaxRetries)
	fmt.Printf("orchestration.escalation_threshold: %d\n", cfg.Orchestration.EscalationThreshold)
	fmt.Printf("orchestration.loop_threshold: %d\n", cfg.Orchestration.LoopThreshold)
	fmt.Printf("orchestration.call_timeout: %s\n", cfg.Orchestration.CallTimeout)
	fmt.Printf("orchestration.fallback_enabled: %t\n", cfg.Orchestration.FallbackEnabled)
	fmt.Printf("orchestration.continue_on_error: %t\n", cfg.Orchestration.ContinueOnError)
	fmt.Printf("orchestration.manager_tier: %s\n", cfg.Orchestration.ManagerTier)
	fmt.Printf("orchestration.worker_tier: %s\n", cfg.Orchestration.WorkerTier)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("tui.headless: %t\n", cfg.TUI.Headless)
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_api":
		return strconv.FormatBool(cfg.Anthropic.UseAPI), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "models.reliable":
		return cfg.Models.Reliable, nil
	case "models.standard":
		return cfg.Models.Standard, nil
	case "models.advanced":
		return cfg.Models.Advanced, nil
	case "orchestration.max_iterations":
		return strconv.Itoa(cfg.Orchestration.MaxIterations), nil
	case "orchestration.max_retries":
		return strconv.Itoa(cfg.Orchestration.MaxRetries), nil
	case "orchestration.escalation_threshold":
		return strconv.Itoa(cfg.Orchestration.EscalationThreshold), nil
	case "orchestration.loop_threshold":
		return strconv.Itoa(cfg.Orchestration.LoopThreshold), nil
	case "orchestration.call_timeout":
		return cfg.Orchestration.CallTimeout.String(), nil
	case "orchestration.fallback_enabled":
		return strconv.FormatBool(cfg.Orchestration.FallbackEnabled), nil
	case "orchestration.continue_on_error":
		return strconv.FormatBool(cfg.Orchestration.ContinueOnError), nil
	case "orchestration.manager_tier":
		return cfg.Orchestration.ManagerTier, nil
	case "orchestration.worker_tier":
		return cfg.Orchestration.WorkerTier, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "tui.headless":
		return strconv.FormatBool(cfg.TUI.Headless), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_api":
		return setBool(&cfg.Anthropic.UseAPI, key, value)
	case "anthropic.use_bedrock":
		return setBool(&cfg.Anthropic.UseBedrock, key, value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "models.reliable":
		cfg.Models.Reliable = value
	case "models.standard":
		cfg.Models.Standard = value
	case "models.advanced":
		cfg.Models.Advanced = value
	case "orchestration.max_iterations":
		return setInt(&cfg.Orchestration.MaxIterations, key, value)
	case "orchestration.max_retries":
		return setInt(&cfg.Orchestration.MaxRetries, key, value)
	case "orchestration.escalation_threshold":
		return setInt(&cfg.Orchestration.EscalationThreshold, key, value)
	case "orchestration.loop_threshold":
		return setInt(&cfg.Orchestration.LoopThreshold, key, value)
	case "orchestration.call_timeout":
		return setDuration(&cfg.Orchestration.CallTimeout, key, value)
	case "orchestration.fallback_enabled":
		return setBool(&cfg.Orchestration.FallbackEnabled, key, value)
	case "orchestration.continue_on_error":
		return setBool(&cfg.Orchestration.ContinueOnError, key, value)
	case "orchestration.manager_tier":
		cfg.Orchestration.ManagerTier = value
	case "orchestration.worker_tier":
		cfg.Orchestration.WorkerTier = value
	case "tui.refresh_rate":
		return setDuration(&cfg.TUI.RefreshRate, key, value)
	case "tui.headless":
		return setBool(&cfg.TUI.Headless, key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for %s: %q", key, value)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %q", key, value)
	}
	*dst = d
	return nil
}
