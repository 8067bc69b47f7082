// Package config handles configuration loading and management for Duet.
// It supports XDG config paths, project-level overrides under .duet/, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/duet/pkg/models"
)

// Config holds all configuration for Duet.
type Config struct {
	Anthropic     AnthropicConfig     `mapstructure:"anthropic"`
	Models        ModelsConfig        `mapstructure:"models"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	TUI           TUIConfig           `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings for API execution mode.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseAPI     bool   `mapstructure:"use_api"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// ModelsConfig maps capability tiers to concrete model names. Empty
// values fall through to the built-in defaults.
type ModelsConfig struct {
	Reliable string `mapstructure:"reliable"`
	Standard string `mapstructure:"standard"`
	Advanced string `mapstructure:"advanced"`
}

// ForTier returns the configured model for the given tier, or "" when
// the built-in default should be used.
func (m ModelsConfig) ForTier(tier models.Tier) string {
	switch tier {
	case models.TierReliable:
		return m.Reliable
	case models.TierStandard:
		return m.Standard
	case models.TierAdvanced:
		return m.Advanced
	default:
		return ""
	}
}

// OrchestrationConfig holds session behavior settings.
type OrchestrationConfig struct {
	MaxIterations       int           `mapstructure:"max_iterations"`
	MaxRetries          int           `mapstructure:"max_retries"`
	EscalationThreshold int           `mapstructure:"escalation_threshold"`
	LoopThreshold       int           `mapstructure:"loop_threshold"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	FallbackEnabled     bool          `mapstructure:"fallback_enabled"`
	ContinueOnError     bool          `mapstructure:"continue_on_error"`
	ManagerTier         string        `mapstructure:"manager_tier"`
	WorkerTier          string        `mapstructure:"worker_tier"`
	AllowedTools        []string      `mapstructure:"allowed_tools"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
	Headless    bool          `mapstructure:"headless"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, DUET_*)
// 2. Project config (.duet/config.yaml in current directory or parent)
// 3. User config (~/.config/duet/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DUET")
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_api", "DUET_USE_API")
	v.BindEnv("anthropic.use_bedrock", "DUET_USE_BEDROCK")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")
	v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_api", false)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("models.reliable", "")
	v.SetDefault("models.standard", "")
	v.SetDefault("models.advanced", "")

	v.SetDefault("orchestration.max_iterations", 20)
	v.SetDefault("orchestration.max_retries", 3)
	v.SetDefault("orchestration.escalation_threshold", 5)
	v.SetDefault("orchestration.loop_threshold", 3)
	v.SetDefault("orchestration.call_timeout", "20m")
	v.SetDefault("orchestration.fallback_enabled", true)
	v.SetDefault("orchestration.continue_on_error", false)
	v.SetDefault("orchestration.manager_tier", "advanced")
	v.SetDefault("orchestration.worker_tier", "standard")
	v.SetDefault("orchestration.allowed_tools", []string{})

	v.SetDefault("tui.refresh_rate", "100ms")
	v.SetDefault("tui.headless", false)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			MaxIterations:       20,
			MaxRetries:          3,
			EscalationThreshold: 5,
			LoopThreshold:       3,
			CallTimeout:         20 * time.Minute,
			FallbackEnabled:     true,
			ManagerTier:         "advanced",
			WorkerTier:          "standard",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// getUserConfigDir returns the XDG config directory for Duet.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "duet")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "duet")
	}
	return filepath.Join(home, ".config", "duet")
}

// findProjectConfig searches for .duet/config.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".duet", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
