package chat

import (
	"errors"
	"testing"
)

func TestParseActionToolCalls(t *testing.T) {
	text := "I'll check the file first.\n```json\n" +
		`{"action": "tool_calls", "tool_calls": [{"name": "read_file", "arguments": {"path": "a.txt"}}], "continue": true}` +
		"\n```"

	action, err := ParseAction(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Action != ActionToolCalls {
		t.Fatalf("expected tool_calls, got %q", action.Action)
	}
	if len(action.ToolCalls) != 1 || action.ToolCalls[0].Name != "read_file" {
		t.Fatalf("unexpected calls %+v", action.ToolCalls)
	}
	if !action.Continue {
		t.Error("continue flag lost")
	}
}

func TestParseActionBareJSON(t *testing.T) {
	action, err := ParseAction(`{"action": "question", "question": "Which file?"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Action != ActionQuestion || action.Question != "Which file?" {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestParseActionPlan(t *testing.T) {
	action, err := ParseAction("```json\n" + `{"action": "plan", "plan": ["read the file", "edit it"]}` + "\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action.Action != ActionPlan || len(action.Plan) != 2 {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestParseActionPlainTextIsNoAction(t *testing.T) {
	for _, text := range []string{
		"Just a plain answer.",
		"Here is some code:\n```go\nfunc main() {}\n```",
		"",
	} {
		if _, err := ParseAction(text); !errors.Is(err, ErrNoAction) {
			t.Errorf("text %q: expected ErrNoAction, got %v", text, err)
		}
	}
}

func TestParseActionMalformed(t *testing.T) {
	tests := []string{
		"```json\n{\"action\": \"tool_calls\",}\n```",                      // invalid JSON
		"```json\n{\"action\": \"teleport\"}\n```",                         // unknown action
		"```json\n{\"action\": \"tool_calls\", \"tool_calls\": [{}]}\n```", // nameless call
	}
	for _, text := range tests {
		_, err := ParseAction(text)
		if err == nil || errors.Is(err, ErrNoAction) {
			t.Errorf("text %q: expected a parse error, got %v", text, err)
		}
	}
}

func TestParseActionEmptyBatchIsFinished(t *testing.T) {
	// An empty batch must not burn parse retries, even with a continue
	// signal attached.
	for _, text := range []string{
		"```json\n{\"action\": \"tool_calls\", \"tool_calls\": []}\n```",
		"```json\n{\"action\": \"tool_calls\", \"continue\": true}\n```",
	} {
		if _, err := ParseAction(text); !errors.Is(err, ErrNoAction) {
			t.Errorf("text %q: expected ErrNoAction, got %v", text, err)
		}
	}
}

func TestParseActionDefaultsEmptyArguments(t *testing.T) {
	action, err := ParseAction(`{"action": "tool_calls", "tool_calls": [{"name": "list_directory"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(action.ToolCalls[0].Arguments) != "{}" {
		t.Errorf("expected empty object arguments, got %s", action.ToolCalls[0].Arguments)
	}
}

func TestStripActionBlock(t *testing.T) {
	text := "Let me look.\n```json\n{\"action\": \"tool_calls\", \"tool_calls\": [{\"name\": \"x\"}]}\n```\nDone."
	if got := StripActionBlock(text); got != "Let me look.\n\nDone." {
		t.Errorf("unexpected stripped text %q", got)
	}

	if got := StripActionBlock(`{"action": "plan", "plan": []}`); got != "" {
		t.Errorf("bare action should strip to empty, got %q", got)
	}

	plain := "No actions here."
	if got := StripActionBlock(plain); got != plain {
		t.Errorf("plain text changed: %q", got)
	}
}
