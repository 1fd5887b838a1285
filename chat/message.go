package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bigduu/chatengine/llm"
)

// MessageKind tags what a message represents. The tag is immutable after
// creation; content may still grow until the message is marked complete.
type MessageKind string

const (
	KindText         MessageKind = "text"
	KindPlan         MessageKind = "plan"
	KindQuestion     MessageKind = "question"
	KindToolCall     MessageKind = "tool_call"
	KindToolResult   MessageKind = "tool_result"
	KindTodoSnapshot MessageKind = "todo_snapshot"
)

// ApprovalStatus tracks a tool call request through the approval gate.
// pending moves to approved or rejected exactly once.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Visibility is a display hint for tool call requests.
type Visibility string

const (
	VisibilityVisible     Visibility = "visible"
	VisibilityCollapsible Visibility = "collapsible"
	VisibilityHidden      Visibility = "hidden"
)

// ToolCallRequest is one parsed tool invocation awaiting (or past) the
// approval gate.
type ToolCallRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Status     ApprovalStatus  `json:"status"`
	Visibility Visibility      `json:"visibility"`
}

// Resolve moves the request out of pending. A second resolution returns
// ErrAlreadyResolved and leaves the status untouched.
func (r *ToolCallRequest) Resolve(approved bool) error {
	if r.Status != ApprovalPending {
		return ErrAlreadyResolved
	}
	if approved {
		r.Status = ApprovalApproved
	} else {
		r.Status = ApprovalRejected
	}
	return nil
}

// Resolved reports whether the request has left pending.
func (r *ToolCallRequest) Resolved() bool {
	return r.Status != ApprovalPending
}

// Message is one entry in a branch. Content parts reuse the llm content
// model so histories convert to provider requests without copying shape.
type Message struct {
	ID        string             `json:"id"`
	Role      llm.Role           `json:"role"`
	Kind      MessageKind        `json:"kind"`
	Content   []llm.ContentPart  `json:"content"`
	ToolCalls []*ToolCallRequest `json:"tool_calls,omitempty"`
	Completed bool               `json:"completed"`
	Aborted   bool               `json:"aborted,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewMessage creates an empty message of the given role and kind.
func NewMessage(role llm.Role, kind MessageKind) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a completed user text message.
func NewUserMessage(text string) *Message {
	m := NewMessage(llm.RoleUser, KindText)
	m.Content = []llm.ContentPart{llm.TextPart(text)}
	m.Completed = true
	return m
}

// NewToolResultMessage creates a completed tool result message.
func NewToolResultMessage(toolCallID, content string, isError bool) *Message {
	m := NewMessage(llm.RoleTool, KindToolResult)
	m.Content = []llm.ContentPart{llm.ToolResultPart(toolCallID, content, isError)}
	m.Completed = true
	return m
}

// AppendText grows the message's text content by one delta. Streaming
// callers hold the session lock.
func (m *Message) AppendText(delta string) {
	if n := len(m.Content); n > 0 && m.Content[n-1].Kind == llm.ContentText {
		m.Content[n-1].Text += delta
		return
	}
	m.Content = append(m.Content, llm.TextPart(delta))
}

// Text returns the concatenated text content.
func (m *Message) Text() string {
	var out string
	for _, part := range m.Content {
		if part.Kind == llm.ContentText {
			out += part.Text
		}
	}
	return out
}

// Clone returns a copy safe to read without the session lock. Content
// parts are copied by value; their payloads are immutable once created.
func (m *Message) Clone() *Message {
	out := *m
	out.Content = append([]llm.ContentPart(nil), m.Content...)
	if m.ToolCalls != nil {
		out.ToolCalls = make([]*ToolCallRequest, len(m.ToolCalls))
		for i, req := range m.ToolCalls {
			r := *req
			out.ToolCalls[i] = &r
		}
	}
	return &out
}

// NewToolCallRequest creates a pending request with default visibility.
func NewToolCallRequest(name string, args json.RawMessage) *ToolCallRequest {
	return &ToolCallRequest{
		ID:         uuid.New().String(),
		Name:       name,
		Arguments:  args,
		Status:     ApprovalPending,
		Visibility: VisibilityVisible,
	}
}
