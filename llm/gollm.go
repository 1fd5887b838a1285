package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider wraps a gollm.LLM instance and implements Provider. It is
// the generic backend: any provider gollm supports can be driven through
// it. Tool calls are not surfaced natively; models behind gollm use the
// structured action protocol in their text output instead.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// GollmWithAPIKey sets the API key. Empty means gollm reads it from the
// environment.
func GollmWithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// GollmWithModel sets the default model.
func GollmWithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// GollmWithMaxTokens sets the default max tokens.
func GollmWithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// NewGollmProvider creates a GollmProvider for the named provider backend.
func NewGollmProvider(provider string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250929"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are the Client's job
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm backend for provider %s: %w", provider, err)
	}

	return &GollmProvider{provider: provider, llm: inner, model: model}, nil
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string { return p.provider }

// Complete sends a blocking request and returns the full response.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := p.translateRequest(req)
	p.applyRequestOptions(req)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}
	return p.buildResponse(req, text), nil
}

// Stream sends a streaming request. Backends without token streaming fall
// back to a single-delta emission of the full generation.
func (p *GollmProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := p.translateRequest(req)
	p.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)

	if !p.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			ch <- StreamEvent{Type: StreamStart}

			text, err := p.llm.Generate(ctx, prompt)
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
				return
			}
			ch <- StreamEvent{Type: TextDelta, Delta: text}
			ch <- StreamEvent{Type: StreamFinish, Response: p.buildResponse(req, text)}
		}()
		return ch, nil
	}

	stream, err := p.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		var fullText strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Err: p.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text}
			fullText.WriteString(token.Text)
		}

		ch <- StreamEvent{Type: StreamFinish, Response: p.buildResponse(req, fullText.String())}
	}()

	return ch, nil
}

// translateRequest flattens the message history into a gollm Prompt.
func (p *GollmProvider) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					parts = append(parts, prefix+": "+part.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (p *GollmProvider) applyRequestOptions(req Request) {
	if req.Model != "" {
		p.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		p.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		p.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

func (p *GollmProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}
	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: p.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: []ContentPart{TextPart(text)},
		},
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		Usage: Usage{
			// gollm does not expose usage; estimate at 4 chars per token.
			InputTokens:  estimateTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  estimateTokens(req) + len(text)/4,
		},
	}
}

// translateError classifies a gollm error into the llm error hierarchy by
// message content, since gollm does not expose structured errors.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	wrap := func(status int, retryable bool) ProviderError {
		return ProviderError{
			Base:       SDKError{Message: msg, Cause: err},
			Provider:   p.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	switch {
	case strings.Contains(lower, "401"), strings.Contains(lower, "unauthorized"), strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: wrap(401, false)}
	case strings.Contains(lower, "403"), strings.Contains(lower, "forbidden"):
		return &AccessDeniedError{ProviderError: wrap(403, false)}
	case strings.Contains(lower, "404"), strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: wrap(404, false)}
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: wrap(429, true)}
	case strings.Contains(lower, "context length"), strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: wrap(413, false)}
	case strings.Contains(lower, "500"), strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: wrap(500, true)}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: wrap(0, false)}
	default:
		pe := wrap(0, true)
		return &pe
	}
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
