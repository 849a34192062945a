package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jllopis/taskbridge/pkg/llm"
	"github.com/jllopis/taskbridge/pkg/message"
	"github.com/jllopis/taskbridge/pkg/tool"
)

const toolRules = `**TOOL USAGE RULES:**
1. When users ask for weather information, you MUST use the get_weather tool
2. When users ask for mathematical calculations, you MUST use the calculate tool
3. Always use tools when the user's request matches their functionality
4. To use a tool, respond with JSON in this exact format: {"name": "tool_name", "parameters": {"param1": "value1"}}
5. Do not add explanatory text before or after the JSON - just return the JSON

**Examples:**
- User asks "What's the weather in Paris?" → Response: {"name": "get_weather", "parameters": {"location": "Paris"}}
- User asks "Calculate 25 * 16" → Response: {"name": "calculate", "parameters": {"expression": "25 * 16"}}
`

// DescribeTools renders the tool catalogue appended to the system prompt.
// It returns "" when defs is empty.
func DescribeTools(defs []tool.Definition) string {
	if len(defs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n**IMPORTANT: You have access to the following tools. When users ask for functionality that these tools provide, you MUST use the tools instead of generating responses yourself.**\n\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "**%s**: %s\n", def.Name, def.Description)
		if len(def.Parameters) > 0 {
			b.WriteString("  Parameters:\n")
			for _, p := range def.Parameters {
				required := ""
				if p.Required {
					required = " (required)"
				}
				fmt.Fprintf(&b, "  - %s%s: %s\n", p.Name, required, p.Description)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(toolRules)
	return b.String()
}

func chatRole(r message.Role) llm.Role {
	switch r {
	case message.RoleAgent:
		return llm.RoleAssistant
	case message.RoleSystem:
		return llm.RoleSystem
	default:
		return llm.RoleUser
	}
}

// BuildContext converts a task history into model messages. With a non-empty
// tool catalogue the first system message is extended, or a system message
// naming the agent is prepended.
func BuildContext(history []message.Message, id Identity, defs []tool.Definition) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: chatRole(m.Role), Content: m.Text()})
	}

	catalogue := DescribeTools(defs)
	if catalogue == "" {
		return msgs
	}
	for i := range msgs {
		if msgs[i].Role == llm.RoleSystem {
			msgs[i].Content += catalogue
			return msgs
		}
	}
	system := llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf("You are %s, %s. %s", id.Name, id.Description, catalogue),
	}
	return append([]llm.Message{system}, msgs...)
}

// latestUserText returns the content of the last user message, or "".
func latestUserText(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
