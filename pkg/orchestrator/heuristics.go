package orchestrator

import (
	"regexp"
	"strings"

	"github.com/jllopis/taskbridge/pkg/tool"
)

// Family is the keyword and pattern set that maps free text onto one tool.
// Patterns are tried in order; the first capture wins.
type Family struct {
	Tool  string
	Param string
	// Keywords gate the user-text pre-check (lowercase substring match).
	Keywords []string
	// Trigger also gates the pre-check when no keyword matches.
	Trigger *regexp.Regexp
	// Patterns extract the argument from user text.
	Patterns []*regexp.Regexp
	// ReplyPatterns extract the argument from model output.
	ReplyPatterns []*regexp.Regexp
	// MinLen rejects shorter captures. Zero means 1.
	MinLen int
}

// DefaultFamilies covers the weather, calculator and leave tools.
func DefaultFamilies() []Family {
	return []Family{
		{
			Tool:     "get_weather",
			Param:    "location",
			MinLen:   2,
			Keywords: []string{"weather", "temperature", "forecast", "climate"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)weather\s+(?:in|for|at)\s+([A-Za-z\s]+?)(?:\?|\.|$|,)`),
				regexp.MustCompile(`(?i)(?:in|for|at)\s+([A-Za-z\s]+?)(?:\s+weather|\?|\.|$)`),
				regexp.MustCompile(`(?i)([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+weather`),
			},
			ReplyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)weather\s+(?:in|for|at)\s+([A-Za-z\s]+?)(?:\?|\.|$|,)`),
				regexp.MustCompile(`(?i)(?:location|city):\s*([A-Za-z\s]+?)(?:\?|\.|$|,|\n)`),
				regexp.MustCompile(`(?i)([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s+weather`),
			},
		},
		{
			Tool:     "calculate",
			Param:    "expression",
			Keywords: []string{"calculate", "compute", "math", "multiply", "divide", "add", "subtract"},
			Trigger:  regexp.MustCompile(`\d+\s*[+\-*/]\s*\d+`),
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(\d+\s*[+\-*/]\s*\d+(?:\s*[+\-*/]\s*\d+)*)`),
				regexp.MustCompile(`(?i)calculate\s+([0-9+\-*/()\s.]+)`),
				regexp.MustCompile(`(?i)what\s+is\s+([0-9+\-*/()\s.]+)`),
			},
			ReplyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)calculate\s+([0-9+\-*/()\s.]+)`),
				regexp.MustCompile(`(?i)(?:expression|calculation):\s*([0-9+\-*/()\s.]+)`),
				regexp.MustCompile(`(?i)([0-9+\-*/()\s.]+)(?:\s*=|\s*equals?)`),
			},
		},
		{
			Tool:     "get_leave_balance",
			Param:    "employee_id",
			Keywords: []string{"leave balance", "remaining leave", "days off"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)(?:leave balance|remaining leave|days off)\s+(?:for|of)\s+([A-Za-z0-9]+)`),
				regexp.MustCompile(`(?i)\b([A-Za-z0-9]+)'s\s+leave balance`),
			},
			ReplyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)employee(?:_id)?:\s*([A-Za-z0-9]+)`),
			},
		},
		{
			Tool:     "get_leave_history",
			Param:    "employee_id",
			Keywords: []string{"leave history"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)leave history\s+(?:for|of)\s+([A-Za-z0-9]+)`),
				regexp.MustCompile(`(?i)\b([A-Za-z0-9]+)'s\s+leave history`),
			},
			ReplyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)employee(?:_id)?:\s*([A-Za-z0-9]+)`),
			},
		},
	}
}

func (f Family) triggered(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range f.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return f.Trigger != nil && f.Trigger.MatchString(text)
}

func (f Family) capture(patterns []*regexp.Regexp, text string) string {
	minLen := f.MinLen
	if minLen < 1 {
		minLen = 1
	}
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); len(v) >= minLen {
			return v
		}
	}
	return ""
}

// PreCheck scans user text for tool families whose tool is in known and
// returns the candidate calls in family order. It never calls the model.
func PreCheck(families []Family, text string, known func(string) bool) []tool.Call {
	if text == "" {
		return nil
	}
	var calls []tool.Call
	for _, f := range families {
		if !known(f.Tool) || !f.triggered(text) {
			continue
		}
		if v := f.capture(f.Patterns, text); v != "" {
			calls = append(calls, tool.Call{Name: f.Tool, Parameters: map[string]any{f.Param: v}})
		}
	}
	return calls
}
