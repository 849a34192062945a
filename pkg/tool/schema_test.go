package tool

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeyedShape(t *testing.T) {
	raw := `{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "City name"},
			"units": {"description": "metric or imperial", "enum": ["metric", "imperial"]}
		},
		"required": ["location"]
	}`
	var s ParameterSchema
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, ShapeKeyed, s.Shape)

	params := Normalize(s)
	require.Len(t, params, 2)
	assert.Equal(t, Parameter{Name: "location", Description: "City name", Type: "string", Required: true}, params[0])
	assert.Equal(t, "units", params[1].Name)
	assert.Equal(t, "string", params[1].Type, "missing type defaults to string")
	assert.False(t, params[1].Required)
	assert.Equal(t, []any{"metric", "imperial"}, params[1].Schema["enum"])
}

func TestNormalizeKeepsDeclarationOrder(t *testing.T) {
	raw := `{"properties": {"zeta": {"type": "string"}, "alpha": {"type": "number"}}}`
	var s ParameterSchema
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	params := Normalize(s)
	require.Len(t, params, 2)
	assert.Equal(t, "zeta", params[0].Name)
	assert.Equal(t, "alpha", params[1].Name)
}

func TestNormalizeListShape(t *testing.T) {
	raw := `[
		{"name": "expression", "description": "Math expression", "type": "string", "required": true},
		{"name": "precision"}
	]`
	var s ParameterSchema
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, ShapeList, s.Shape)

	params := Normalize(s)
	require.Len(t, params, 2)
	assert.Equal(t, Parameter{Name: "expression", Description: "Math expression", Type: "string", Required: true}, params[0])
	assert.Equal(t, Parameter{Name: "precision", Type: "string"}, params[1])
}

func TestBothShapesNormalizeIdentically(t *testing.T) {
	keyed := `{"type":"object","properties":{"location":{"type":"string","description":"City"}},"required":["location"]}`
	list := `[{"name":"location","type":"string","description":"City","required":true}]`

	var a, b ParameterSchema
	require.NoError(t, json.Unmarshal([]byte(keyed), &a))
	require.NoError(t, json.Unmarshal([]byte(list), &b))
	assert.Equal(t, Normalize(a), Normalize(b))
}

func TestNormalizeEmptyAndUnknownShapes(t *testing.T) {
	for _, raw := range []string{`null`, `{}`, `"text"`} {
		var s ParameterSchema
		require.NoError(t, json.Unmarshal([]byte(raw), &s), raw)
		assert.Empty(t, Normalize(s), raw)
	}
}

func TestFromMCPSchema(t *testing.T) {
	params := FromMCPSchema(mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"b": map[string]any{"type": "number", "description": "second"},
			"a": map[string]any{"type": "number", "description": "first"},
		},
		Required: []string{"a"},
	})
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].Name)
	assert.True(t, params[0].Required)
	assert.Equal(t, "number", params[1].Type)
}

func TestKeyedSchemaRendersWireShape(t *testing.T) {
	schema := KeyedSchema([]Parameter{
		{Name: "location", Description: "City", Type: "string", Required: true},
		{Name: "days", Description: "Forecast days", Type: "integer", Schema: map[string]any{"minimum": 1}},
	})
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"location"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "integer", "description": "Forecast days", "minimum": 1}, props["days"])
}
