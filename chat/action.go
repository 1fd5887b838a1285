package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the structured block a model without native tool calling emits
// inside its text output. Exactly one of the action kinds applies.
type Action struct {
	Action    string           `json:"action"` // "tool_calls", "plan", "question"
	ToolCalls []ActionToolCall `json:"tool_calls,omitempty"`
	Plan      []string         `json:"plan,omitempty"`
	Question  string           `json:"question,omitempty"`
	Continue  bool             `json:"continue,omitempty"`
}

// ActionToolCall is one tool invocation inside a tool_calls action.
type ActionToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

const (
	ActionToolCalls = "tool_calls"
	ActionPlan      = "plan"
	ActionQuestion  = "question"
)

// ParseAction extracts a structured action from assistant text. Text with
// no action block returns ErrNoAction (a normal outcome). A present but
// malformed block returns a parse error, which the agent loop converts
// into a parse retry.
func ParseAction(text string) (*Action, error) {
	block, found := extractActionBlock(text)
	if !found {
		return nil, ErrNoAction
	}

	var action Action
	if err := json.Unmarshal([]byte(block), &action); err != nil {
		return nil, fmt.Errorf("malformed action block: %w", err)
	}

	switch action.Action {
	case ActionToolCalls:
		// A well-formed action with zero calls means the model has
		// nothing to run; the turn is finished, not malformed.
		if len(action.ToolCalls) == 0 {
			return nil, ErrNoAction
		}
		for i, call := range action.ToolCalls {
			if call.Name == "" {
				return nil, fmt.Errorf("tool call %d has no name", i)
			}
			if len(call.Arguments) == 0 {
				action.ToolCalls[i].Arguments = json.RawMessage(`{}`)
			}
		}
	case ActionPlan, ActionQuestion:
	default:
		return nil, fmt.Errorf("unknown action %q", action.Action)
	}

	return &action, nil
}

// extractActionBlock finds the candidate JSON object. Fenced blocks win;
// otherwise text that is itself a JSON object with an "action" key counts.
func extractActionBlock(text string) (string, bool) {
	for _, fence := range []string{"```json", "```action", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		block := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(block, "{") && strings.Contains(block, `"action"`) {
			return block, true
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && strings.Contains(trimmed, `"action"`) {
		return trimmed, true
	}
	return "", false
}

// StripActionBlock removes the fenced action block from assistant text so
// the surrounding prose can stand alone as the visible message body.
func StripActionBlock(text string) string {
	for _, fence := range []string{"```json", "```action", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		block := strings.TrimSpace(rest[:end])
		if !strings.HasPrefix(block, "{") || !strings.Contains(block, `"action"`) {
			continue
		}
		return strings.TrimSpace(text[:start] + rest[end+3:])
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") && strings.Contains(trimmed, `"action"`) {
		return ""
	}
	return strings.TrimSpace(text)
}
