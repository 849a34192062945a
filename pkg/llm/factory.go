package llm

import (
	"fmt"

	"github.com/jllopis/taskbridge/pkg/config"
)

// New builds the provider named by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllama(cfg.BaseURL, WithOllamaModel(cfg.Model)), nil
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case "mock":
		return &MockProvider{Response: "mock response"}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
