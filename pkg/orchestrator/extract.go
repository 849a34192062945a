package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jllopis/taskbridge/pkg/tool"
)

// Strategy extracts tool calls from model output. known lists the tool names
// the client currently has cached. Strategies have no side effects.
type Strategy func(text string, known []string) []tool.Call

var embeddedCall = regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]*)"\s*,\s*"parameters"\s*:\s*(\{[^}]*\})\s*\}`)

// EmbeddedJSON finds every {"name": ..., "parameters": {...}} object in text.
// Objects whose parameters do not decode are skipped.
func EmbeddedJSON(text string, _ []string) []tool.Call {
	var calls []tool.Call
	for _, m := range embeddedCall.FindAllStringSubmatch(text, -1) {
		var params map[string]any
		if err := json.Unmarshal([]byte(m[2]), &params); err != nil {
			continue
		}
		calls = append(calls, tool.Call{Name: m[1], Parameters: params})
	}
	return calls
}

// WholeJSON parses the trimmed text as a single call object.
func WholeJSON(text string, _ []string) []tool.Call {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &obj); err != nil {
		return nil
	}
	name, ok := obj["name"].(string)
	if !ok || name == "" {
		return nil
	}
	params, _ := obj["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	return []tool.Call{{Name: name, Parameters: params}}
}

// Heuristic builds the strategy that looks for known tool names mentioned in
// the text and pulls their argument out with the family's reply patterns.
func Heuristic(families []Family) Strategy {
	byTool := make(map[string]Family, len(families))
	for _, f := range families {
		byTool[f.Tool] = f
	}
	return func(text string, known []string) []tool.Call {
		lower := strings.ToLower(text)
		var calls []tool.Call
		for _, name := range known {
			f, ok := byTool[name]
			if !ok || !strings.Contains(lower, strings.ToLower(name)) {
				continue
			}
			if v := f.capture(f.ReplyPatterns, text); v != "" {
				calls = append(calls, tool.Call{Name: name, Parameters: map[string]any{f.Param: v}})
			}
		}
		return calls
	}
}

// DefaultStrategies returns embedded JSON, whole-output JSON and the
// heuristics over DefaultFamilies, in that order.
func DefaultStrategies() []Strategy {
	return strategiesFor(DefaultFamilies())
}

func strategiesFor(families []Family) []Strategy {
	return []Strategy{EmbeddedJSON, WholeJSON, Heuristic(families)}
}

// Extract runs strategies in order and returns the calls of the first one
// that yields any.
func Extract(strategies []Strategy, text string, known []string) []tool.Call {
	for _, s := range strategies {
		if calls := s(text, known); len(calls) > 0 {
			return calls
		}
	}
	return nil
}
