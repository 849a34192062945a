package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Orchestrator.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Orchestrator.MaxAttempts)
	}
	if cfg.Orchestrator.RetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %s", cfg.Orchestrator.RetryDelay)
	}
	if cfg.RemoteTools.Auth.KeyName != "X-API-Key" {
		t.Errorf("expected default api key header, got %q", cfg.RemoteTools.Auth.KeyName)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("unexpected server addr %q", cfg.Server.Addr)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
llm:
  provider: openai
  model: gpt-4o-mini
remote_tools:
  url: http://localhost:8080
  auth:
    type: bearer
`)
	t.Setenv("TASKBRIDGE_LLM_BASE_URL", "http://proxy:9000")
	t.Setenv("TASKBRIDGE_REMOTE_TOOLS_AUTH_TOKEN", "secret")
	t.Setenv("TASKBRIDGE_ORCHESTRATOR_MAX_ATTEMPTS", "5")
	t.Setenv("TASKBRIDGE_DELEGATE_URL", "http://provider:8000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("file values not applied: %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != "http://proxy:9000" {
		t.Errorf("env base_url not applied: %q", cfg.LLM.BaseURL)
	}
	if cfg.RemoteTools.URL != "http://localhost:8080" || cfg.RemoteTools.Auth.Type != "bearer" {
		t.Errorf("remote tools not loaded: %+v", cfg.RemoteTools)
	}
	if cfg.RemoteTools.Auth.Token != "secret" {
		t.Errorf("env auth token not applied: %q", cfg.RemoteTools.Auth.Token)
	}
	if cfg.Orchestrator.MaxAttempts != 5 {
		t.Errorf("env max_attempts not applied: %d", cfg.Orchestrator.MaxAttempts)
	}
	if cfg.Delegate.URL != "http://provider:8000" || cfg.Delegate.Timeout != 30*time.Second {
		t.Errorf("delegate not loaded: %+v", cfg.Delegate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"TASKBRIDGE_LLM_API_KEY":                "llm.api_key",
		"TASKBRIDGE_TOOLS_MCP_PATH":             "tools.mcp_path",
		"TASKBRIDGE_REMOTE_TOOLS_URL":           "remote_tools.url",
		"TASKBRIDGE_REMOTE_TOOLS_AUTH_KEY_NAME": "remote_tools.auth.key_name",
		"TASKBRIDGE_TELEMETRY_OTLP_ENDPOINT":    "telemetry.otlp_endpoint",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestProfilePath(t *testing.T) {
	if got := ProfilePath("/etc/tb/config.yaml", "dev"); got != "/etc/tb/config.dev.yaml" {
		t.Fatalf("unexpected profile path %s", got)
	}
}
