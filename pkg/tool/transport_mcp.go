package tool

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/taskbridge/pkg/errors"
	"github.com/jllopis/taskbridge/pkg/resilience"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpSession is the subset of the mcp-go client used by MCPTransport.
type mcpSession interface {
	Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPTransport consumes tools from a Model Context Protocol server.
type MCPTransport struct {
	session mcpSession
	timeout time.Duration
	retry   resilience.RetryConfig
	info    ServerInfo
}

// MCPOption configures an MCPTransport.
type MCPOption func(*mcpOptions)

type mcpOptions struct {
	timeout time.Duration
	retries int
	backoff time.Duration
	headers map[string]string
}

// WithMCPTimeout sets the per-request timeout.
func WithMCPTimeout(d time.Duration) MCPOption {
	return func(o *mcpOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMCPRetry configures retries and initial backoff for list and call requests.
func WithMCPRetry(retries int, backoff time.Duration) MCPOption {
	return func(o *mcpOptions) {
		if retries >= 0 {
			o.retries = retries
		}
		if backoff > 0 {
			o.backoff = backoff
		}
	}
}

// WithMCPAuth sends auth headers on every request.
func WithMCPAuth(auth Auth) MCPOption {
	return func(o *mcpOptions) {
		o.headers = auth.Headers()
	}
}

func newMCPOptions(opts []MCPOption) mcpOptions {
	o := mcpOptions{timeout: defaultExecuteTimeout, retries: 2, backoff: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DialMCP connects to a streamable HTTP MCP endpoint and initializes the session.
func DialMCP(ctx context.Context, endpoint string, opts ...MCPOption) (*MCPTransport, error) {
	o := newMCPOptions(opts)
	var copts []transport.StreamableHTTPCOption
	if len(o.headers) > 0 {
		copts = append(copts, transport.WithHTTPHeaders(o.headers))
	}
	c, err := client.NewStreamableHttpClient(endpoint, copts...)
	if err != nil {
		return nil, errors.New(errors.CodeRemoteFailure, "create mcp client", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, errors.New(errors.CodeRemoteFailure, "start mcp client", err)
	}
	return NewMCPTransport(ctx, c, opts...)
}

// NewMCPTransport initializes an already started MCP session.
func NewMCPTransport(ctx context.Context, session mcpSession, opts ...MCPOption) (*MCPTransport, error) {
	o := newMCPOptions(opts)
	t := &MCPTransport{
		session: session,
		timeout: o.timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  o.retries + 1,
			InitialDelay: o.backoff,
			Multiplier:   2,
		},
	}

	initCtx, cancel := context.WithTimeout(ctx, defaultListTimeout)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "taskbridge", Version: "1.0.0"}
	res, err := session.Initialize(initCtx, req)
	if err != nil {
		_ = session.Close()
		return nil, errors.New(errors.CodeRemoteFailure, "initialize mcp session", err)
	}
	t.info = ServerInfo{
		Name:        res.ServerInfo.Name,
		Description: res.Instructions,
		Version:     res.ServerInfo.Version,
		Auth:        map[string]any{"type": "none"},
		Endpoints:   map[string]string{"protocol": "mcp/" + res.ProtocolVersion},
	}
	return t, nil
}

// Info returns the server identity reported during initialization.
func (t *MCPTransport) Info(ctx context.Context) (ServerInfo, error) {
	return t.info, nil
}

// ListTools lists the server tools and normalizes their input schemas.
func (t *MCPTransport) ListTools(ctx context.Context) ([]Definition, error) {
	res, err := resilience.DoWithResult(ctx, t.retry, func(int) (*mcp.ListToolsResult, error) {
		reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return t.session.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(res.Tools))
	for _, mt := range res.Tools {
		defs = append(defs, Definition{
			Name:        mt.Name,
			Description: mt.Description,
			Parameters:  FromMCPSchema(mt.InputSchema),
		})
	}
	return defs, nil
}

// Execute calls the tool and unwraps structured or text content.
func (t *MCPTransport) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := resilience.DoWithResult(ctx, t.retry, func(int) (*mcp.CallToolResult, error) {
		reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return t.session.CallTool(reqCtx, req)
	})
	if err != nil {
		return nil, err
	}
	return callResultValue(res)
}

// Close ends the MCP session.
func (t *MCPTransport) Close() error {
	return t.session.Close()
}

func callResultValue(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, stderrors.New("mcp tool result is nil")
	}
	text := extractTextContent(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("%s", text)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded, nil
	}
	return text, nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
