package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server exposes a Registry over the JSON tool protocol and mirrors it as an
// MCP server on a streamable HTTP endpoint.
type Server struct {
	registry *Registry
	info     ServerInfo
	mcp      *server.MCPServer
	mcpPath  string
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMCPPath sets the MCP endpoint path; empty disables the mirror.
func WithMCPPath(path string) ServerOption {
	return func(s *Server) {
		s.mcpPath = path
	}
}

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds a tool server for registry.
func NewServer(registry *Registry, info ServerInfo, opts ...ServerOption) *Server {
	if info.Contact == nil {
		info.Contact = map[string]any{}
	}
	if info.Auth == nil {
		info.Auth = map[string]any{"type": "none"}
	}
	info.Endpoints = map[string]string{"tools": "/tools", "execute": "/execute"}

	s := &Server{
		registry: registry,
		info:     info,
		mcpPath:  "/mcp",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer(info.Name, info.Version,
		server.WithToolCapabilities(false),
		server.WithInstructions(info.Description),
	)
	return s
}

// Handler returns the HTTP routes. Tools registered after this call are not
// mirrored to MCP until Handler is called again.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+DiscoveryPath, s.handleDiscovery)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /execute", s.handleExecute)
	if s.mcpPath != "" {
		s.mirrorTools()
		mux.Handle(s.mcpPath, server.NewStreamableHTTPServer(s.mcp,
			server.WithEndpointPath(s.mcpPath),
			server.WithStateLess(true),
		))
	}
	return cors(mux)
}

// MCPServer returns the MCP mirror with the current registry contents.
func (s *Server) MCPServer() *server.MCPServer {
	s.mirrorTools()
	return s.mcp
}

func (s *Server) mirrorTools() {
	for _, def := range s.registry.List() {
		name := def.Name
		schema := KeyedSchema(def.Parameters)
		props, _ := schema["properties"].(map[string]any)
		s.mcp.AddTool(mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: props,
				Required:   def.RequiredNames(),
			},
		}, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res := s.registry.Execute(ctx, name, req.GetArguments())
			if res.Failed() {
				return mcp.NewToolResultError(res.Error), nil
			}
			data, err := json.Marshal(res.Value)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(string(data)), nil
		})
	}
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Return      map[string]any `json:"return"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.List()
	tools := make([]wireTool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, wireTool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  KeyedSchema(d.Parameters),
			Return:      d.Returns,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var call Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON in request body"})
		return
	}
	if call.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing tool name"})
		return
	}

	s.logger.InfoContext(r.Context(), "executing tool", "tool", call.Name)
	res := s.registry.Execute(r.Context(), call.Name, call.Parameters)
	if res.Failed() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": res.Error})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res.Value})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
