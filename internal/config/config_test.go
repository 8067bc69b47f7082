package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestration.MaxIterations != 20 {
		t.Errorf("expected default max_iterations 20, got %d", cfg.Orchestration.MaxIterations)
	}

	if cfg.Orchestration.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Orchestration.MaxRetries)
	}

	if cfg.Orchestration.EscalationThreshold != 5 {
		t.Errorf("expected default escalation_threshold 5, got %d", cfg.Orchestration.EscalationThreshold)
	}

	if cfg.Orchestration.LoopThreshold != 3 {
		t.Errorf("expected default loop_threshold 3, got %d", cfg.Orchestration.LoopThreshold)
	}

	if cfg.Orchestration.CallTimeout != 20*time.Minute {
		t.Errorf("expected default call_timeout 20m, got %v", cfg.Orchestration.CallTimeout)
	}

	if !cfg.Orchestration.FallbackEnabled {
		t.Error("expected fallback_enabled to default to true")
	}

	if cfg.Orchestration.ContinueOnError {
		t.Error("expected continue_on_error to default to false")
	}

	if cfg.Orchestration.ManagerTier != "advanced" {
		t.Errorf("expected manager_tier 'advanced', got %q", cfg.Orchestration.ManagerTier)
	}

	if cfg.Orchestration.WorkerTier != "standard" {
		t.Errorf("expected worker_tier 'standard', got %q", cfg.Orchestration.WorkerTier)
	}

	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  use_bedrock: true
  aws_region: us-west-2
models:
  reliable: claude-3-5-haiku-20241022
  advanced: claude-opus-4-1-20250805
orchestration:
  max_iterations: 8
  call_timeout: 5m
  fallback_enabled: false
  allowed_tools:
    - Read
    - Write
tui:
  refresh_rate: 200ms
  headless: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}

	if !cfg.Anthropic.UseBedrock {
		t.Error("expected use_bedrock true")
	}

	if cfg.Anthropic.AWSRegion != "us-west-2" {
		t.Errorf("expected aws_region 'us-west-2', got %q", cfg.Anthropic.AWSRegion)
	}

	if cfg.Models.Reliable != "claude-3-5-haiku-20241022" {
		t.Errorf("unexpected reliable model %q", cfg.Models.Reliable)
	}

	if cfg.Orchestration.MaxIterations != 8 {
		t.Errorf("expected max_iterations 8, got %d", cfg.Orchestration.MaxIterations)
	}

	if cfg.Orchestration.CallTimeout != 5*time.Minute {
		t.Errorf("expected call_timeout 5m, got %v", cfg.Orchestration.CallTimeout)
	}

	if cfg.Orchestration.FallbackEnabled {
		t.Error("expected fallback_enabled false")
	}

	if len(cfg.Orchestration.AllowedTools) != 2 || cfg.Orchestration.AllowedTools[0] != "Read" {
		t.Errorf("unexpected allowed_tools %v", cfg.Orchestration.AllowedTools)
	}

	if cfg.TUI.RefreshRate != 200*time.Millisecond {
		t.Errorf("expected refresh_rate 200ms, got %v", cfg.TUI.RefreshRate)
	}

	if !cfg.TUI.Headless {
		t.Error("expected headless true")
	}
}

func TestLoadFromPath_DefaultsPreserved(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// A file that only overrides one key keeps the other defaults.
	configContent := `
orchestration:
  max_iterations: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Orchestration.MaxIterations != 5 {
		t.Errorf("expected max_iterations 5, got %d", cfg.Orchestration.MaxIterations)
	}

	if cfg.Orchestration.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Orchestration.MaxRetries)
	}

	if !cfg.Orchestration.FallbackEnabled {
		t.Error("expected default fallback_enabled true")
	}
}

func TestLoadFromPath_ExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("DUET_TEST_KEY", "sk-ant-from-env")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := "anthropic:\n  api_key: ${DUET_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("expected expanded api_key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestModelsForTier(t *testing.T) {
	m := ModelsConfig{
		Reliable: "haiku",
		Standard: "sonnet",
		Advanced: "opus",
	}

	tests := []struct {
		tier models.Tier
		want string
	}{
		{models.TierReliable, "haiku"},
		{models.TierStandard, "sonnet"},
		{models.TierAdvanced, "opus"},
		{models.Tier("bogus"), ""},
	}

	for _, tt := range tests {
		if got := m.ForTier(tt.tier); got != tt.want {
			t.Errorf("ForTier(%q) = %q, want %q", tt.tier, got, tt.want)
		}
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(configPath); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath of written config failed: %v", err)
	}

	def := Default()
	if cfg.Orchestration.MaxIterations != def.Orchestration.MaxIterations {
		t.Errorf("round trip changed max_iterations: %d", cfg.Orchestration.MaxIterations)
	}
	if cfg.Orchestration.CallTimeout != def.Orchestration.CallTimeout {
		t.Errorf("round trip changed call_timeout: %v", cfg.Orchestration.CallTimeout)
	}
	if cfg.TUI.RefreshRate != def.TUI.RefreshRate {
		t.Errorf("round trip changed refresh_rate: %v", cfg.TUI.RefreshRate)
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("anthropic: {}\n"), 0644); err != nil {
		t.Fatalf("failed to write existing file: %v", err)
	}

	if err := WriteDefault(configPath); err == nil {
		t.Fatal("expected error when config file already exists")
	}
}

func TestWriteProjectDefault(t *testing.T) {
	tmpDir := t.TempDir()

	path, err := WriteProjectDefault(tmpDir)
	if err != nil {
		t.Fatalf("WriteProjectDefault failed: %v", err)
	}

	want := filepath.Join(tmpDir, ".duet", "config.yaml")
	if path != want {
		t.Errorf("expected path %q, got %q", want, path)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to exist: %v", err)
	}
}
