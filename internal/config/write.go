package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with yaml tags and string durations so the
// written file stays human-editable.
type fileConfig struct {
	Anthropic struct {
		APIKey     string `yaml:"api_key"`
		UseAPI     bool   `yaml:"use_api"`
		UseBedrock bool   `yaml:"use_bedrock"`
		AWSRegion  string `yaml:"aws_region,omitempty"`
		AWSProfile string `yaml:"aws_profile,omitempty"`
	} `yaml:"anthropic"`
	Models struct {
		Reliable string `yaml:"reliable,omitempty"`
		Standard string `yaml:"standard,omitempty"`
		Advanced string `yaml:"advanced,omitempty"`
	} `yaml:"models"`
	Orchestration struct {
		MaxIterations       int      `yaml:"max_iterations"`
		MaxRetries          int      `yaml:"max_retries"`
		EscalationThreshold int      `yaml:"escalation_threshold"`
		LoopThreshold       int      `yaml:"loop_threshold"`
		CallTimeout         string   `yaml:"call_timeout"`
		FallbackEnabled     bool     `yaml:"fallback_enabled"`
		ContinueOnError     bool     `yaml:"continue_on_error"`
		ManagerTier         string   `yaml:"manager_tier"`
		WorkerTier          string   `yaml:"worker_tier"`
		AllowedTools        []string `yaml:"allowed_tools,omitempty"`
	} `yaml:"orchestration"`
	TUI struct {
		RefreshRate string `yaml:"refresh_rate"`
		Headless    bool   `yaml:"headless"`
	} `yaml:"tui"`
}

func toFileConfig(cfg *Config) *fileConfig {
	fc := &fileConfig{}
	fc.Anthropic.APIKey = cfg.Anthropic.APIKey
	fc.Anthropic.UseAPI = cfg.Anthropic.UseAPI
	fc.Anthropic.UseBedrock = cfg.Anthropic.UseBedrock
	fc.Anthropic.AWSRegion = cfg.Anthropic.AWSRegion
	fc.Anthropic.AWSProfile = cfg.Anthropic.AWSProfile
	fc.Models.Reliable = cfg.Models.Reliable
	fc.Models.Standard = cfg.Models.Standard
	fc.Models.Advanced = cfg.Models.Advanced
	fc.Orchestration.MaxIterations = cfg.Orchestration.MaxIterations
	fc.Orchestration.MaxRetries = cfg.Orchestration.MaxRetries
	fc.Orchestration.EscalationThreshold = cfg.Orchestration.EscalationThreshold
	fc.Orchestration.LoopThreshold = cfg.Orchestration.LoopThreshold
	fc.Orchestration.CallTimeout = cfg.Orchestration.CallTimeout.String()
	fc.Orchestration.FallbackEnabled = cfg.Orchestration.FallbackEnabled
	fc.Orchestration.ContinueOnError = cfg.Orchestration.ContinueOnError
	fc.Orchestration.ManagerTier = cfg.Orchestration.ManagerTier
	fc.Orchestration.WorkerTier = cfg.Orchestration.WorkerTier
	fc.Orchestration.AllowedTools = cfg.Orchestration.AllowedTools
	fc.TUI.RefreshRate = cfg.TUI.RefreshRate.String()
	fc.TUI.Headless = cfg.TUI.Headless
	return fc
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return writeTo(GetUserConfigPath(), cfg)
}

// WriteDefault writes a default config file at path, creating parent
// directories as needed. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return writeTo(path, Default())
}

// WriteProjectDefault writes a default .duet/config.yaml under dir.
func WriteProjectDefault(dir string) (string, error) {
	path := filepath.Join(dir, ".duet", "config.yaml")
	if err := WriteDefault(path); err != nil {
		return "", err
	}
	return path, nil
}

func writeTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(toFileConfig(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
