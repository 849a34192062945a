// Package agentcard builds, publishes and fetches the agent discovery document.
package agentcard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jllopis/taskbridge/pkg/bridge"
)

// Discovery constants for AgentCard HTTP endpoints.
const (
	// WellKnownPath is the location of the agent card.
	WellKnownPath = "/.well-known/agent.json"
	// Protocol is the protocol tag every card carries.
	Protocol = "a2a-1.0"
	// DefaultVersion is used when a card has no version.
	DefaultVersion = "1.0.0"
)

// Card is the agent discovery document.
type Card struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Skills      []bridge.Skill `json:"skills"`
	Version     string         `json:"version"`
	Protocol    string         `json:"protocol"`
}

// Config describes the card fields derived from runtime settings.
type Config struct {
	Name        string
	Description string
	Endpoint    string
	Version     string
	Skills      []bridge.Skill
}

// Build assembles a Card from cfg.
func Build(cfg Config) *Card {
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	skills := append([]bridge.Skill{}, cfg.Skills...)
	return &Card{
		Name:        cfg.Name,
		Description: cfg.Description,
		Endpoint:    cfg.Endpoint,
		Skills:      skills,
		Version:     version,
		Protocol:    Protocol,
	}
}

// PublishHandler serves the card returned by card() as JSON. A nil card
// yields 404.
func PublishHandler(card func() *Card) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := card()
		if c == nil {
			http.Error(w, "agent card not configured", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(c)
	})
}

// Fetch retrieves a Card from a base URL.
func Fetch(ctx context.Context, client *http.Client, baseURL string) (*Card, error) {
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(baseURL, "/") + WellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card fetch failed: %s", resp.Status)
	}

	var card Card
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card: %w", err)
	}
	if card.Version == "" {
		card.Version = DefaultVersion
	}
	return &card, nil
}
