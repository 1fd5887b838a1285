package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bigduu/chatengine/llm"
)

// BuildToolInstructions renders the structured action protocol for the
// advertised tools. Models with native tool calling may ignore it; models
// without it emit a fenced JSON action block instead.
func BuildToolInstructions(defs []llm.ToolDefinition) string {
	var sb strings.Builder
	sb.WriteString("# Available Tools\n\n")
	sb.WriteString("You can invoke the following tools:\n\n")

	for _, def := range defs {
		sb.WriteString(fmt.Sprintf("## %s\n%s\n", def.Name, def.Description))
		if schema, err := json.Marshal(def.Parameters); err == nil {
			sb.WriteString("Arguments schema: ")
			sb.Write(schema)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`# Action Protocol

If your platform does not support native tool calling, respond with a single fenced JSON action block:

` + "```json" + `
{"action": "tool_calls", "tool_calls": [{"name": "<tool>", "arguments": {...}}], "continue": true}
` + "```" + `

Other actions:
- {"action": "plan", "plan": ["step 1", "step 2"]} to present a plan without executing anything.
- {"action": "question", "question": "..."} to ask the user a clarifying question.

Set "continue" to true on a tool_calls action when you want to see the results and keep working. Emit at most one action block per response. Plain text responses need no action block.
`)
	return sb.String()
}
