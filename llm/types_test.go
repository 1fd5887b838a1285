package llm

import (
	"encoding/json"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("SystemMessage", func(t *testing.T) {
		msg := SystemMessage("You are helpful.")
		if msg.Role != RoleSystem {
			t.Errorf("expected role %q, got %q", RoleSystem, msg.Role)
		}
		if msg.TextContent() != "You are helpful." {
			t.Errorf("unexpected text %q", msg.TextContent())
		}
	})

	t.Run("ToolResultMessage", func(t *testing.T) {
		msg := ToolResultMessage("call_123", "72F and sunny", false)
		if msg.Role != RoleTool {
			t.Errorf("expected role %q, got %q", RoleTool, msg.Role)
		}
		if msg.ToolCallID != "call_123" {
			t.Errorf("unexpected tool_call_id %q", msg.ToolCallID)
		}
		if len(msg.Content) != 1 || msg.Content[0].Kind != ContentToolResult {
			t.Fatalf("expected a single tool result part, got %+v", msg.Content)
		}
	})
}

func TestMessageTextContentConcatenates(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("Hello, "),
			ToolCallPart("call_1", "lookup", json.RawMessage(`{}`)),
			TextPart("world"),
		},
	}
	if msg.TextContent() != "Hello, world" {
		t.Errorf("unexpected text %q", msg.TextContent())
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("Checking the weather."),
			ToolCallPart("call_1", "get_weather", json.RawMessage(`{"city":"SF"}`)),
			ToolCallPart("call_2", "get_time", json.RawMessage(`{}`)),
		},
	}

	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "get_weather" {
		t.Errorf("unexpected first call %+v", calls[0])
	}
	if calls[1].ID != "call_2" || calls[1].Name != "get_time" {
		t.Errorf("unexpected second call %+v", calls[1])
	}
}

func TestResponseToolCallExtraction(t *testing.T) {
	resp := Response{
		Message: Message{
			Role: RoleAssistant,
			Content: []ContentPart{
				ToolCallPart("call_9", "search", json.RawMessage(`{"q":"go"}`)),
			},
		},
	}

	calls := resp.ToolCallsFromResponse()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].Name != "search" {
		t.Errorf("unexpected call name %q", calls[0].Name)
	}

	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("arguments did not round-trip: %v", err)
	}
	if args["q"] != "go" {
		t.Errorf("unexpected arguments %v", args)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	b := Usage{InputTokens: 2, OutputTokens: 3, TotalTokens: 5}
	sum := a.Add(b)
	if sum.InputTokens != 12 || sum.OutputTokens != 8 || sum.TotalTokens != 20 {
		t.Errorf("unexpected sum %+v", sum)
	}
}
