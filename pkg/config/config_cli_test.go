package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
llm:
  provider: ollama
  model: model-a
agent:
  name: weather-agent
`)
	writeFile(t, filepath.Join(dir, "config.dev.yaml"), `
agent:
  name: weather-agent-dev
`)
	t.Setenv("TASKBRIDGE_LLM_PROVIDER", "openai")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--profile=dev",
		"--set", "llm.provider=anthropic",
		"--set", "tools.enabled=true",
		"--set", "orchestrator.retry_delay=250ms",
		"--set", "llm.temperature=0.2",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected cli override provider, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "model-a" {
		t.Fatalf("expected file model, got %s", cfg.LLM.Model)
	}
	if cfg.Agent.Name != "weather-agent-dev" {
		t.Fatalf("expected profile overlay, got %s", cfg.Agent.Name)
	}
	if !cfg.Tools.Enabled {
		t.Fatalf("expected tools.enabled=true")
	}
	if cfg.Orchestrator.RetryDelay != 250*time.Millisecond {
		t.Fatalf("expected retry delay override, got %s", cfg.Orchestrator.RetryDelay)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLM.Temperature)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}

func TestParseCLIOverridesIgnoresOtherFlags(t *testing.T) {
	opts, err := parseCLIOverrides([]string{"--addr", ":9000", "--config=c.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Path != "c.yaml" {
		t.Fatalf("expected path c.yaml, got %q", opts.Path)
	}
}
