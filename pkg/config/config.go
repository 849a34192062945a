// Package config loads taskbridge settings from defaults, a YAML file, an
// optional profile overlay, TASKBRIDGE_* environment variables and --set flags,
// in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "TASKBRIDGE_"

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Agent        AgentConfig        `koanf:"agent"`
	Server       ServerConfig       `koanf:"server"`
	Tools        ToolsConfig        `koanf:"tools"`
	RemoteTools  RemoteToolsConfig  `koanf:"remote_tools"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Webhook      WebhookConfig      `koanf:"webhook"`
	Delegate     DelegateConfig     `koanf:"delegate"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string  `koanf:"provider"` // ollama, openai, anthropic, mock
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// AgentConfig describes the agent advertised in its card.
type AgentConfig struct {
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Endpoint    string `koanf:"endpoint"`
	Version     string `koanf:"version"`
	SkillsFile  string `koanf:"skills_file"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// ToolsConfig controls the embedded tool server.
type ToolsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Addr        string `koanf:"addr"`
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Version     string `koanf:"version"`
	MCPPath     string `koanf:"mcp_path"`
}

// RemoteToolsConfig points the agent at a tool server to consume.
type RemoteToolsConfig struct {
	URL       string        `koanf:"url"`
	Transport string        `koanf:"transport"` // http, mcp
	Timeout   time.Duration `koanf:"timeout"`
	Auth      AuthConfig    `koanf:"auth"`
}

type AuthConfig struct {
	Type    string `koanf:"type"` // bearer, api_key
	Token   string `koanf:"token"`
	Key     string `koanf:"key"`
	KeyName string `koanf:"key_name"`
}

type OrchestratorConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

type WebhookConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// DelegateConfig points the agent at a peer agent that answers tool-style
// requests on its behalf.
type DelegateConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Token   string        `koanf:"token"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

var sections = []string{
	"log", "llm", "agent", "server", "tools", "remote_tools",
	"orchestrator", "webhook", "delegate", "telemetry",
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                  "info",
		"log.format":                 "text",
		"llm.provider":               "ollama",
		"llm.model":                  "llama3.2",
		"llm.temperature":            0.7,
		"llm.max_tokens":             1024,
		"agent.name":                 "taskbridge",
		"agent.description":          "an assistant that can delegate work to tools",
		"agent.endpoint":             "http://localhost:8000",
		"agent.version":              "1.0.0",
		"server.addr":                ":8000",
		"tools.enabled":              false,
		"tools.addr":                 ":8080",
		"tools.name":                 "taskbridge-tools",
		"tools.description":          "demo tool server",
		"tools.version":              "1.0.0",
		"tools.mcp_path":             "/mcp",
		"remote_tools.transport":     "http",
		"remote_tools.timeout":       "30s",
		"remote_tools.auth.key_name": "X-API-Key",
		"orchestrator.max_attempts":  3,
		"orchestrator.retry_delay":   "1s",
		"webhook.timeout":            "5s",
		"delegate.timeout":           "30s",
		"telemetry.exporter":         "none",
		"telemetry.otlp_endpoint":    "localhost:4317",
		"telemetry.otlp_insecure":    true,
	}
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	return load(Options{Path: path})
}

// Options selects the sources Load merges on top of the defaults.
type Options struct {
	Path    string
	Profile string
	Sets    map[string]string
}

// LoadWithCLI parses --config, --profile and --set key=value flags out of args
// and loads the resulting configuration.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts)
}

// ParseArgs extracts the --config, --profile and --set flags from args.
// Other arguments are ignored.
func ParseArgs(args []string) (Options, error) {
	return parseCLIOverrides(args)
}

// LoadOptions loads configuration from explicit options.
func LoadOptions(opts Options) (*Config, error) {
	return load(opts)
}

func load(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", opts.Path, err)
		}
		if opts.Profile != "" {
			overlay := ProfilePath(opts.Path, opts.Profile)
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("load profile %s: %w", overlay, err)
				}
			}
		}
	}

	// TASKBRIDGE_LLM_BASE_URL -> llm.base_url
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, raw := range opts.Sets {
		if err := k.Set(key, parseValue(raw)); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ProfilePath returns the overlay file for profile next to path,
// e.g. config.yaml + dev -> config.dev.yaml.
func ProfilePath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

// envKey maps TASKBRIDGE_REMOTE_TOOLS_URL to remote_tools.url. The section is
// matched against known names so keys may keep their underscores.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			if section == "remote_tools" {
				if sub, ok := strings.CutPrefix(rest, "auth_"); ok {
					return "remote_tools.auth." + sub
				}
			}
			return section + "." + rest
		}
	}
	return strings.ReplaceAll(key, "_", ".")
}

// parseValue decodes a --set value as YAML so numbers, booleans and
// JSON objects keep their type. Anything undecodable stays a string.
func parseValue(raw string) any {
	var v any
	if err := yamlv3.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	return v
}

func parseCLIOverrides(args []string) (Options, error) {
	opts := Options{Sets: map[string]string{}}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--profile":
			if !hasValue {
				if i+1 >= len(args) {
					return opts, fmt.Errorf("%s requires a value", name)
				}
				i++
				value = args[i]
			}
			if name == "--config" {
				opts.Path = value
			} else {
				opts.Profile = value
			}
		case "--set":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("--set requires key=value")
			}
			i++
			key, val, ok := strings.Cut(args[i], "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, fmt.Errorf("invalid --set value %q, want key=value", args[i])
			}
			opts.Sets[strings.TrimSpace(key)] = val
		}
	}
	return opts, nil
}
