package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// AnthropicProvider implements Provider against the official Anthropic SDK,
// with native streaming and tool use.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates an Anthropic provider. baseURL may be empty
// for the public API; apiKey is required.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "anthropic api key is required"}}
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{client: &client, model: model}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends a blocking request and returns the full response.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := p.translateRequest(req)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.translateResponse(msg), nil
}

// Stream sends a streaming request. Text deltas are emitted as they arrive;
// tool calls are emitted after the stream completes, from the accumulated
// message.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params := p.translateRequest(req)
	ch := make(chan StreamEvent, 64)

	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		stream := p.client.Messages.NewStreaming(ctx, params)
		msg := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				ch <- StreamEvent{Type: StreamError, Err: &StreamFailure{SDKError: SDKError{
					Message: "accumulate stream event", Cause: err,
				}}}
				return
			}

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text != "" {
						ch <- StreamEvent{Type: TextDelta, Delta: deltaVariant.Text}
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
			return
		}

		resp := p.translateResponse(&msg)
		for _, call := range resp.ToolCallsFromResponse() {
			c := call
			ch <- StreamEvent{Type: ToolCallEvent, ToolCall: &c}
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()

	return ch, nil
}

func (p *AnthropicProvider) translateRequest(req Request) anthropic.MessageNewParams {
	messages, system := convertAnthropicMessages(req.Messages)

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(4096)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = convertAnthropicTools(req.ToolDefs)
	}
	return params
}

// convertAnthropicMessages maps the common message model onto Anthropic's
// request format. System messages become system blocks; tool results are
// carried as labeled user text so multi-turn tool conversations replay
// cleanly.
func convertAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.TextContent()})
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.TextContent())))
		case RoleAssistant:
			text := msg.TextContent()
			for _, call := range msg.ToolCalls() {
				text += fmt.Sprintf("\n[Tool Call %s] %s(%s)", call.ID, call.Name, string(call.Arguments))
			}
			if text != "" {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					label := "[Tool Result " + part.ToolResult.ToolCallID + "]"
					if part.ToolResult.IsError {
						label = "[Tool Error " + part.ToolResult.ToolCallID + "]"
					}
					out = append(out, anthropic.NewUserMessage(
						anthropic.NewTextBlock(label+"\n"+part.ToolResult.Content)))
				}
			}
		}
	}

	return out, system
}

func convertAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := def.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if required, ok := def.Parameters["required"].([]string); ok {
			schema.Required = required
		} else if rawRequired, ok := def.Parameters["required"].([]any); ok {
			names := make([]string, 0, len(rawRequired))
			for _, r := range rawRequired {
				if s, ok := r.(string); ok {
					names = append(names, s)
				}
			}
			schema.Required = names
		}

		result[i] = anthropic.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			result[i].OfTool.Description = anthropic.String(def.Description)
		}
	}
	return result
}

func (p *AnthropicProvider) translateResponse(msg *anthropic.Message) *Response {
	var parts []ContentPart
	for _, block := range msg.Content {
		switch blockVariant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, TextPart(blockVariant.Text))
		case anthropic.ToolUseBlock:
			parts = append(parts, ToolCallPart(blockVariant.ID, blockVariant.Name, blockVariant.Input))
		}
	}

	reason := "stop"
	switch msg.StopReason {
	case anthropic.StopReasonMaxTokens:
		reason = "length"
	case anthropic.StopReasonToolUse:
		reason = "tool_calls"
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		reason = "stop"
	}

	return &Response{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Provider:     "anthropic",
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: reason, Raw: string(msg.StopReason)},
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func (p *AnthropicProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return ErrorFromStatusCode(apierr.StatusCode, apierr.Error(), "anthropic", nil)
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{SDKError: SDKError{Message: "request aborted", Cause: err}}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
	}
	return &NetworkError{SDKError: SDKError{Message: err.Error(), Cause: err}}
}
