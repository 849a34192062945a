package orchestrator

import (
	"testing"

	"github.com/jllopis/taskbridge/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownSet(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func TestPreCheckWeatherInParis(t *testing.T) {
	calls := PreCheck(DefaultFamilies(), "What's the weather in Paris?", knownSet("get_weather", "calculate"))
	require.Len(t, calls, 1)
	assert.Equal(t, tool.Call{Name: "get_weather", Parameters: map[string]any{"location": "Paris"}}, calls[0])
}

func TestPreCheckScopedToKnownTools(t *testing.T) {
	assert.Empty(t, PreCheck(DefaultFamilies(), "What's the weather in Paris?", knownSet("calculate")))
	assert.Empty(t, PreCheck(DefaultFamilies(), "", knownSet("get_weather")))
}

func TestPreCheckMath(t *testing.T) {
	cases := map[string]string{
		"what's 15 * 8":                "15 * 8",
		"Please calculate 25 * 4 + 10": "25 * 4 + 10",
		"compute 7/2 for me":           "7/2",
	}
	for input, want := range cases {
		calls := PreCheck(DefaultFamilies(), input, knownSet("calculate"))
		require.Len(t, calls, 1, input)
		assert.Equal(t, want, calls[0].Parameters["expression"], input)
	}
}

func TestPreCheckCombinedQuery(t *testing.T) {
	calls := PreCheck(DefaultFamilies(),
		"What's the weather in Paris, what's 15 * 8, and what's the leave balance for Raghu?",
		knownSet("get_weather", "calculate", "get_leave_balance"))
	require.Len(t, calls, 3)
	assert.Equal(t, "Paris", calls[0].Parameters["location"])
	assert.Equal(t, "15 * 8", calls[1].Parameters["expression"])
	assert.Equal(t, "Raghu", calls[2].Parameters["employee_id"])
}

func TestPreCheckNoMatch(t *testing.T) {
	assert.Empty(t, PreCheck(DefaultFamilies(), "Tell me a joke", knownSet("get_weather", "calculate")))
}

func TestEmbeddedJSON(t *testing.T) {
	text := `Sure. {"name": "get_weather", "parameters": {"location": "Tokyo"}} and then {"name": "calculate", "parameters": {"expression": "1+1"}}`
	calls := EmbeddedJSON(text, nil)
	require.Len(t, calls, 2)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "Tokyo", calls[0].Parameters["location"])
	assert.Equal(t, "calculate", calls[1].Name)
}

func TestWholeJSONCalculate(t *testing.T) {
	calls := WholeJSON(`{"name": "calculate", "parameters": {"expression": "2 + 2"}}`, nil)
	require.Len(t, calls, 1)
	assert.Equal(t, tool.Call{Name: "calculate", Parameters: map[string]any{"expression": "2 + 2"}}, calls[0])

	assert.Empty(t, WholeJSON(`{"parameters": {}}`, nil))
	assert.Empty(t, WholeJSON(`not json`, nil))
}

func TestExtractFallsBackToWholeJSONForNestedParameters(t *testing.T) {
	text := `  {"name": "apply_leave", "parameters": {"employee_id": "Jake", "meta": {"half_day": true}}}  `
	assert.Empty(t, EmbeddedJSON(text, nil))

	calls := Extract(DefaultStrategies(), text, nil)
	require.Len(t, calls, 1)
	assert.Equal(t, "apply_leave", calls[0].Name)
	assert.Equal(t, "Jake", calls[0].Parameters["employee_id"])
}

func TestHeuristicReplyPatterns(t *testing.T) {
	strategy := Heuristic(DefaultFamilies())

	calls := strategy("Use get_weather with location: London.", []string{"calculate", "get_weather"})
	require.Len(t, calls, 1)
	assert.Equal(t, "London", calls[0].Parameters["location"])

	calls = strategy("I would calculate 12 * 3 here", []string{"calculate"})
	require.Len(t, calls, 1)
	assert.Equal(t, "12 * 3", calls[0].Parameters["expression"])

	assert.Empty(t, strategy("Use get_weather with location: London.", []string{"calculate"}),
		"only known tool names are considered")
}

func TestExtractOrder(t *testing.T) {
	var order []string
	record := func(name string, n int) Strategy {
		return func(string, []string) []tool.Call {
			order = append(order, name)
			calls := make([]tool.Call, n)
			for i := range calls {
				calls[i] = tool.Call{Name: name}
			}
			return calls
		}
	}
	calls := Extract([]Strategy{record("a", 0), record("b", 1), record("c", 1)}, "x", nil)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].Name)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestFormatResults(t *testing.T) {
	out := FormatResults(DefaultFormatters(), []tool.Result{
		{Name: "get_weather", Value: map[string]any{"temperature": 72}},
		{Name: "calculate", Value: 4.0},
		{Name: "list_employees", Value: "none"},
		{Name: "get_leave_balance", Error: "unknown employee"},
	})
	assert.Equal(t, "Weather information: {\"temperature\":72}\n"+
		"The result is: 4\n"+
		"list_employees result: none\n"+
		"Error executing get_leave_balance: unknown employee", out)
}
