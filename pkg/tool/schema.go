package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// SchemaShape tags which wire form a ParameterSchema was decoded from.
type SchemaShape int

const (
	ShapeNone SchemaShape = iota
	// ShapeKeyed is {"type":"object","properties":{...},"required":[...]}.
	ShapeKeyed
	// ShapeList is [{"name":..,"type":..,"required":bool}, ...].
	ShapeList
)

// ParameterSchema holds a parameter schema in either accepted shape.
type ParameterSchema struct {
	Shape      SchemaShape
	Properties map[string]map[string]any
	Order      []string
	Required   []string
	List       []Parameter
}

// UnmarshalJSON detects the shape from the first token.
func (s *ParameterSchema) UnmarshalJSON(data []byte) error {
	*s = ParameterSchema{}
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '{':
		var keyed struct {
			Properties map[string]map[string]any `json:"properties"`
			Required   []string                  `json:"required"`
		}
		if err := json.Unmarshal(data, &keyed); err != nil {
			return fmt.Errorf("decode keyed parameters: %w", err)
		}
		if keyed.Properties == nil {
			return nil
		}
		s.Shape = ShapeKeyed
		s.Properties = keyed.Properties
		s.Required = keyed.Required
		s.Order = propertyOrder(data, keyed.Properties)
	case '[':
		var list []Parameter
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode parameter list: %w", err)
		}
		s.Shape = ShapeList
		s.List = list
	}
	return nil
}

// Normalize turns either shape into the canonical parameter list. Missing
// types default to "string".
func Normalize(s ParameterSchema) []Parameter {
	switch s.Shape {
	case ShapeKeyed:
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		order := s.Order
		if len(order) != len(s.Properties) {
			order = sortedKeys(s.Properties)
		}
		out := make([]Parameter, 0, len(order))
		for _, name := range order {
			info := s.Properties[name]
			p := Parameter{
				Name:        name,
				Description: stringField(info, "description"),
				Type:        stringField(info, "type"),
				Required:    required[name],
			}
			if extra := extraSchema(info); len(extra) > 0 {
				p.Schema = extra
			}
			out = append(out, withDefaultType(p))
		}
		return out
	case ShapeList:
		out := make([]Parameter, 0, len(s.List))
		for _, p := range s.List {
			out = append(out, withDefaultType(p))
		}
		return out
	default:
		return nil
	}
}

// FromMCPSchema normalizes an MCP tool input schema.
func FromMCPSchema(in mcp.ToolInputSchema) []Parameter {
	s := ParameterSchema{Shape: ShapeKeyed, Required: in.Required}
	s.Properties = make(map[string]map[string]any, len(in.Properties))
	for name, raw := range in.Properties {
		if info, ok := raw.(map[string]any); ok {
			s.Properties[name] = info
		} else {
			s.Properties[name] = map[string]any{}
		}
	}
	return Normalize(s)
}

// KeyedSchema renders params in the keyed wire shape.
func KeyedSchema(params []Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0)
	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		for k, v := range p.Schema {
			prop[k] = v
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func withDefaultType(p Parameter) Parameter {
	if p.Type == "" {
		p.Type = "string"
	}
	return p
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func extraSchema(info map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range info {
		if k == "type" || k == "description" {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// propertyOrder recovers the declaration order of "properties" keys, which
// a Go map loses.
func propertyOrder(data []byte, props map[string]map[string]any) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		if key != "properties" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil
		}
		order := make([]string, 0, len(props))
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil
			}
			name, _ := tok.(string)
			order = append(order, name)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}
		return order
	}
	return nil
}
