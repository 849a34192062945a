package tool

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/taskbridge/pkg/errors"
)

// ServerInfo is the discovery document of a tool server.
type ServerInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Contact     map[string]any    `json:"contact"`
	Auth        map[string]any    `json:"auth"`
	Endpoints   map[string]string `json:"endpoints"`
}

// Transport moves discovery, listing and execution requests to a server.
type Transport interface {
	Info(ctx context.Context) (ServerInfo, error)
	ListTools(ctx context.Context) ([]Definition, error)
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Client discovers remote tools and invokes them by name. Invoke only
// accepts tools present in the discovery cache.
type Client struct {
	transport Transport
	logger    *slog.Logger

	mu    sync.RWMutex
	info  ServerInfo
	tools map[string]Definition
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client over transport.
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		logger:    slog.Default(),
		tools:     make(map[string]Definition),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover fetches the server metadata and then its tool listing.
func (c *Client) Discover(ctx context.Context) (ServerInfo, error) {
	info, err := c.transport.Info(ctx)
	if err != nil {
		return ServerInfo{}, errors.New(errors.CodeRemoteFailure, "tool discovery failed", err)
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "connected to tool server", "server", info.Name, "version", info.Version)

	if _, err := c.Refresh(ctx); err != nil {
		return info, err
	}
	return info, nil
}

// Refresh re-lists the server's tools into the cache. Entries are merged by
// name; the last definition seen for a name wins.
func (c *Client) Refresh(ctx context.Context) ([]Definition, error) {
	defs, err := c.transport.ListTools(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeRemoteFailure, "tool listing failed", err)
	}
	c.mu.Lock()
	for _, d := range defs {
		c.tools[d.Name] = d.clone()
	}
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "tools discovered", "count", len(defs))

	out := make([]Definition, len(defs))
	for i, d := range defs {
		out[i] = d.clone()
	}
	return out, nil
}

// Invoke executes a cached tool. An unknown name fails locally with a
// NOT_FOUND error; transport failures are returned inside Result.Error.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (Result, error) {
	if _, ok := c.Tool(name); !ok {
		return Result{}, errors.NotFound("Tool not found: %s", name).WithContext("tool", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	value, err := c.transport.Execute(ctx, name, args)
	if err != nil {
		c.logger.WarnContext(ctx, "tool execution failed", "tool", name, "error", err)
		return Result{Name: name, Error: err.Error()}, nil
	}
	return Result{Name: name, Value: value}, nil
}

// Info returns the last discovered server metadata.
func (c *Client) Info() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Tool returns the cached definition for name.
func (c *Client) Tool(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[name]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// Tools returns the cached definitions sorted by name.
func (c *Client) Tools() []Definition {
	c.mu.RLock()
	out := make([]Definition, 0, len(c.tools))
	for _, d := range c.tools {
		out = append(out, d.clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
