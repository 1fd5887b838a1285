package chat

import (
	"fmt"

	"github.com/bigduu/chatengine/llm"
)

// DefaultBranchName is the branch every session starts with.
const DefaultBranchName = "main"

// Branch is an ordered, append-only log of messages. Messages already
// appended are never edited or removed; corrections arrive as new
// messages. Branches are mutated only under the owning session's lock.
type Branch struct {
	Name         string     `json:"name"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
	SeedPrompt   string     `json:"seed_prompt,omitempty"`
	Messages     []*Message `json:"messages"`
}

// NewBranch creates an empty branch.
func NewBranch(name, systemPrompt string) *Branch {
	return &Branch{Name: name, SystemPrompt: systemPrompt}
}

// Append adds a message to the end of the branch.
func (b *Branch) Append(m *Message) {
	b.Messages = append(b.Messages, m)
}

// Len returns the number of messages.
func (b *Branch) Len() int { return len(b.Messages) }

// Last returns the most recent message, or nil for an empty branch.
func (b *Branch) Last() *Message {
	if len(b.Messages) == 0 {
		return nil
	}
	return b.Messages[len(b.Messages)-1]
}

// Fork creates a new branch carrying the first upTo messages. The message
// pointers are shared; the append-only invariant keeps sharing safe.
func (b *Branch) Fork(name string, upTo int) (*Branch, error) {
	if upTo < 0 || upTo > len(b.Messages) {
		return nil, fmt.Errorf("fork index %d out of range [0,%d]", upTo, len(b.Messages))
	}
	fork := &Branch{
		Name:         name,
		SystemPrompt: b.SystemPrompt,
		SeedPrompt:   b.SeedPrompt,
		Messages:     make([]*Message, upTo),
	}
	copy(fork.Messages, b.Messages)
	return fork, nil
}

// History converts the branch into provider messages. The system prompt
// leads; incomplete messages are included with whatever content has
// streamed so far; tool call requests are replayed as tool call parts so
// the model sees its own prior invocations.
func (b *Branch) History() []llm.Message {
	out := make([]llm.Message, 0, len(b.Messages)+1)
	if b.SystemPrompt != "" {
		out = append(out, llm.SystemMessage(b.SystemPrompt))
	}
	for _, msg := range b.Messages {
		parts := make([]llm.ContentPart, 0, len(msg.Content)+len(msg.ToolCalls))
		parts = append(parts, msg.Content...)
		for _, call := range msg.ToolCalls {
			parts = append(parts, llm.ToolCallPart(call.ID, call.Name, call.Arguments))
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: parts})
	}
	return out
}
