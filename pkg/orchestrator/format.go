package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/taskbridge/pkg/tool"
)

// Formatter renders one successful tool result as a line of text.
type Formatter func(value any) string

// DefaultFormatters holds the per-tool phrasing. Tools without an entry use
// "<name> result: <value>".
func DefaultFormatters() map[string]Formatter {
	return map[string]Formatter{
		"add_numbers":      func(v any) string { return "The sum is: " + formatValue(v) },
		"multiply_numbers": func(v any) string { return "The product is: " + formatValue(v) },
		"get_weather":      func(v any) string { return "Weather information: " + formatValue(v) },
		"calculate":        func(v any) string { return "The result is: " + formatValue(v) },
	}
}

// FormatResults renders each result on its own line, in order.
func FormatResults(formatters map[string]Formatter, results []tool.Result) string {
	var b strings.Builder
	for _, r := range results {
		switch {
		case r.Failed():
			fmt.Fprintf(&b, "Error executing %s: %s\n", r.Name, r.Error)
		case formatters[r.Name] != nil:
			b.WriteString(formatters[r.Name](r.Value))
			b.WriteString("\n")
		default:
			fmt.Fprintf(&b, "%s result: %s\n", r.Name, formatValue(r.Value))
		}
	}
	return strings.TrimSpace(b.String())
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
