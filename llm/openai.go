package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider implements Provider against the official OpenAI SDK. It
// also serves OpenAI-compatible endpoints (OpenRouter, local gateways) via
// a custom base URL.
type OpenAIProvider struct {
	name   string
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider. baseURL may be empty for
// the public API; apiKey is required.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	return newOpenAICompatible("openai", baseURL, apiKey, model)
}

// NewOpenAICompatibleProvider creates a provider under a custom name for an
// OpenAI-compatible endpoint.
func NewOpenAICompatibleProvider(name, baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "base url is required for openai-compatible provider " + name}}
	}
	return newOpenAICompatible(name, baseURL, apiKey, model)
}

func newOpenAICompatible(name, baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: name + " api key is required"}}
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		name:   name,
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return p.name }

// Complete sends a blocking request and returns the full response.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := p.translateRequest(req)

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.translateResponse(completion), nil
}

// Stream sends a streaming request. Content deltas are emitted as they
// arrive; tool calls are emitted from the accumulated completion once the
// stream ends.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params := p.translateRequest(req)
	ch := make(chan StreamEvent, 64)

	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				ch <- StreamEvent{Type: TextDelta, Delta: chunk.Choices[0].Delta.Content}
			}
		}

		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
			return
		}

		resp := p.translateResponse(&acc.ChatCompletion)
		for _, call := range resp.ToolCallsFromResponse() {
			c := call
			ch <- StreamEvent{Type: ToolCallEvent, ToolCall: &c}
		}
		ch <- StreamEvent{Type: StreamFinish, Response: resp}
	}()

	return ch, nil
}

func (p *OpenAIProvider) translateRequest(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, len(req.ToolDefs))
		for i, def := range req.ToolDefs {
			tools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			})
		}
		params.Tools = tools
	}
	return params
}

// convertOpenAIMessages maps the common message model onto OpenAI's request
// format. Past tool calls and results are replayed as labeled text, which
// keeps multi-turn histories valid without pairing constraints.
func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.TextContent()))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.TextContent()))
		case RoleAssistant:
			text := msg.TextContent()
			for _, call := range msg.ToolCalls() {
				text += fmt.Sprintf("\n[Tool Call %s] %s(%s)", call.ID, call.Name, string(call.Arguments))
			}
			if text != "" {
				out = append(out, openai.AssistantMessage(text))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					label := "[Tool Result " + part.ToolResult.ToolCallID + "]"
					if part.ToolResult.IsError {
						label = "[Tool Error " + part.ToolResult.ToolCallID + "]"
					}
					out = append(out, openai.UserMessage(label+"\n"+part.ToolResult.Content))
				}
			}
		default:
			out = append(out, openai.UserMessage(msg.TextContent()))
		}
	}

	return out
}

func (p *OpenAIProvider) translateResponse(completion *openai.ChatCompletion) *Response {
	var parts []ContentPart
	reason := "stop"
	raw := ""

	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		if choice.Message.Content != "" {
			parts = append(parts, TextPart(choice.Message.Content))
		}
		for _, call := range choice.Message.ToolCalls {
			parts = append(parts, ToolCallPart(call.ID, call.Function.Name, []byte(call.Function.Arguments)))
		}

		raw = string(choice.FinishReason)
		switch raw {
		case "length":
			reason = "length"
		case "tool_calls", "function_call":
			reason = "tool_calls"
		case "content_filter":
			reason = "other"
		}
	}

	return &Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Provider:     p.name,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: FinishReason{Reason: reason, Raw: raw},
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}
}

func (p *OpenAIProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return ErrorFromStatusCode(apierr.StatusCode, apierr.Error(), p.name, nil)
	}
	if errors.Is(err, context.Canceled) {
		return &AbortError{SDKError: SDKError{Message: "request aborted", Cause: err}}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "request timed out", Cause: err}}
	}
	return &NetworkError{SDKError: SDKError{Message: err.Error(), Cause: err}}
}
