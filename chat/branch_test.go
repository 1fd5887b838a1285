package chat

import (
	"testing"

	"github.com/bigduu/chatengine/llm"
)

func TestBranchFork(t *testing.T) {
	b := NewBranch(DefaultBranchName, "be helpful")
	for _, text := range []string{"one", "two", "three"} {
		b.Append(NewUserMessage(text))
	}

	fork, err := b.Fork("alt", 2)
	if err != nil {
		t.Fatalf("fork failed: %v", err)
	}
	if fork.Len() != 2 {
		t.Fatalf("expected 2 messages in fork, got %d", fork.Len())
	}
	if fork.SystemPrompt != "be helpful" {
		t.Error("system prompt not carried into fork")
	}

	// Appending to the fork must not leak into the original.
	fork.Append(NewUserMessage("four"))
	if b.Len() != 3 {
		t.Errorf("original branch grew to %d", b.Len())
	}

	if _, err := b.Fork("bad", 99); err == nil {
		t.Error("out-of-range fork index accepted")
	}
}

func TestBranchHistory(t *testing.T) {
	b := NewBranch(DefaultBranchName, "system text")
	b.Append(NewUserMessage("hi"))

	reply := NewMessage(llm.RoleAssistant, KindText)
	reply.AppendText("hello")
	reply.Completed = true
	b.Append(reply)

	calls := NewMessage(llm.RoleAssistant, KindToolCall)
	calls.ToolCalls = []*ToolCallRequest{NewToolCallRequest("read_file", []byte(`{"path":"x"}`))}
	calls.Completed = true
	b.Append(calls)

	b.Append(NewToolResultMessage(calls.ToolCalls[0].ID, "contents", false))

	history := b.History()
	if len(history) != 5 {
		t.Fatalf("expected 5 history messages, got %d", len(history))
	}
	if history[0].Role != llm.RoleSystem {
		t.Error("history must start with the system prompt")
	}
	if got := history[3].ToolCalls(); len(got) != 1 || got[0].Name != "read_file" {
		t.Errorf("tool call request not replayed, got %+v", got)
	}
	if history[4].Role != llm.RoleTool {
		t.Errorf("tool result role %s", history[4].Role)
	}
}
