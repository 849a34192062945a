// Package tool implements both sides of the tool protocol: a Registry that
// serves local handlers and a Client that discovers and invokes remote ones.
package tool

import (
	"context"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Type        string         `json:"type"`
	Required    bool           `json:"required"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Definition describes a tool. Definitions are treated as immutable once
// registered or discovered; accessors return copies.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  []Parameter    `json:"parameters"`
	Returns     map[string]any `json:"return,omitempty"`
}

// RequiredNames lists the required parameter names in declaration order.
func (d Definition) RequiredNames() []string {
	var out []string
	for _, p := range d.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func (d Definition) clone() Definition {
	out := d
	out.Parameters = append([]Parameter(nil), d.Parameters...)
	return out
}

// Call is a request to run a tool.
type Call struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Result carries either Value or Error for a tool call.
type Result struct {
	Name  string `json:"name"`
	Value any    `json:"result,omitempty"`
	Error string `json:"error,omitempty"`
}

// Failed reports whether the call produced an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Handler runs a tool with decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)
