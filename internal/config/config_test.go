package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Defaults.Concurrency)
	}
	if cfg.Defaults.Agent != "auto" {
		t.Errorf("Agent = %q, want auto", cfg.Defaults.Agent)
	}
	if cfg.Defaults.Format != "tagged" {
		t.Errorf("Format = %q, want tagged", cfg.Defaults.Format)
	}
	if cfg.Timeouts.Step != 15*time.Minute {
		t.Errorf("Step timeout = %v, want 15m", cfg.Timeouts.Step)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
defaults:
  agent: claude
  concurrency: 2
  token_budget: 4000
  format: markdown
timeouts:
  step: 30s
backends:
  - name: claude
    command: claude
    args: ["--output-format", "stream-json", "--print", "--verbose"]
  - name: local
    command: llm-cli
    model: small
history:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Defaults.Agent != "claude" || cfg.Defaults.Concurrency != 2 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Defaults.TokenBudget != 4000 || cfg.Defaults.Format != "markdown" {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Timeouts.Step != 30*time.Second {
		t.Errorf("Step timeout = %v, want 30s", cfg.Timeouts.Step)
	}
	if len(cfg.Backends) != 2 || cfg.Backends[0].Name != "claude" || cfg.Backends[1].Model != "small" {
		t.Errorf("backends = %+v", cfg.Backends)
	}
	if len(cfg.Backends[0].Args) != 4 {
		t.Errorf("args = %v", cfg.Backends[0].Args)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
}

func TestLoadFromPathDefaultsFillGaps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("defaults:\n  agent: claude\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Defaults.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want default 5", cfg.Defaults.Concurrency)
	}
	if cfg.Defaults.TokenBudget != 100000 {
		t.Errorf("TokenBudget = %d, want default 100000", cfg.Defaults.TokenBudget)
	}
}

func TestAPIKeyEnvExpansion(t *testing.T) {
	t.Setenv("WEAVE_TEST_KEY", "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: ${WEAVE_TEST_KEY}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want expanded value", cfg.Anthropic.APIKey)
	}
}
