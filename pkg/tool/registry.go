package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type registered struct {
	def     Definition
	handler Handler
}

// Registry holds locally served tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]registered
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for execution failures.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]registered),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool by name and returns its definition.
func (r *Registry) Register(name, description string, handler Handler, params ...Parameter) Definition {
	def := Definition{
		Name:        name,
		Description: description,
		Parameters:  make([]Parameter, 0, len(params)),
	}
	for _, p := range params {
		def.Parameters = append(def.Parameters, withDefaultType(p))
	}

	r.mu.Lock()
	r.tools[name] = registered{def: def, handler: handler}
	r.mu.Unlock()
	return def.clone()
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return t.def.clone(), true
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool. Unknown tools, missing required arguments,
// handler errors and panics are all reported through Result.Error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res Result) {
	res.Name = name
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		res.Error = "Tool not found: " + name
		return res
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateRequiredArgs(t.def, args); err != nil {
		res.Error = err.Error()
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "tool panicked", "tool", name, "panic", p)
			res.Value = nil
			res.Error = fmt.Sprintf("tool %s panicked: %v", name, p)
		}
	}()

	value, err := t.handler(ctx, args)
	if err != nil {
		r.logger.WarnContext(ctx, "tool failed", "tool", name, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Value = value
	return res
}

func validateRequiredArgs(def Definition, args map[string]any) error {
	for _, name := range def.RequiredNames() {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}
	return nil
}
