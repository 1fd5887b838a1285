package llm

import (
	"context"
	"strings"
	"sync"
)

// MockProvider is a scripted Provider for tests and local development. Each
// call consumes the next queued response; streaming emits the response text
// word by word so consumers see realistic delta sequences. When the queue
// is empty the last response repeats.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []*Response
	errs      []error
	requests  []Request
}

// NewMockProvider creates a MockProvider named "mock".
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock"}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return m.name }

// QueueText queues a plain text response.
func (m *MockProvider) QueueText(text string) *MockProvider {
	return m.QueueResponse(&Response{
		ID:           "mock_resp",
		Model:        "mock-model",
		Provider:     m.name,
		Message:      AssistantMessage(text),
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	})
}

// QueueToolCalls queues a response containing the given tool calls.
func (m *MockProvider) QueueToolCalls(calls ...ToolCallData) *MockProvider {
	parts := make([]ContentPart, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, ToolCallPart(call.ID, call.Name, call.Arguments))
	}
	return m.QueueResponse(&Response{
		ID:           "mock_resp",
		Model:        "mock-model",
		Provider:     m.name,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: "tool_calls", Raw: "tool_calls"},
		Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	})
}

// QueueResponse queues a full response.
func (m *MockProvider) QueueResponse(resp *Response) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// QueueError queues an error for the next call.
func (m *MockProvider) QueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockProvider) next(req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	if len(m.responses) == 0 {
		return &Response{
			ID:           "mock_resp",
			Model:        "mock-model",
			Provider:     m.name,
			Message:      AssistantMessage("ok"),
			FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		}, nil
	}

	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

// Complete returns the next scripted response.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AbortError{SDKError: SDKError{Message: "request aborted", Cause: err}}
	}
	return m.next(req)
}

// Stream returns the next scripted response as a stream of word deltas
// followed by tool call events and a finish event.
func (m *MockProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		words := strings.SplitAfter(resp.Text(), " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			select {
			case <-ctx.Done():
				ch <- StreamEvent{Type: StreamError, Err: &AbortError{SDKError: SDKError{
					Message: "stream aborted", Cause: ctx.Err(),
				}}}
				return
			case ch <- StreamEvent{Type: TextDelta, Delta: w}:
			}
		}

		for _, call := range resp.ToolCallsFromResponse() {
			c := call
			ch <- StreamEvent{Type: ToolCallEvent, ToolCall: &c}
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()

	return ch, nil
}
