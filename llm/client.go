package llm

import (
	"context"
	"fmt"
	"sync"
)

// Client routes requests to registered provider backends by name. Complete
// calls go through the retry policy; Stream calls do not (a broken stream
// is surfaced to the caller, which owns resumption semantics).
type Client struct {
	providers       map[string]Provider
	defaultProvider string
	retry           RetryPolicy
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider backend.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		c.providers[p.Name()] = p
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithRetryPolicy overrides the retry policy for Complete calls.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// NewClient creates a Client with the given options. If no default is set
// and exactly one provider is registered, that provider becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider backend to the client.
func (c *Client) RegisterProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
}

func (c *Client) resolve(req Request) (Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return p, nil
}

// Complete sends a blocking request to the resolved provider, retrying
// retryable failures under the client's policy.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = p.Name()
	}
	return Retry(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return p.Complete(ctx, req)
	})
}

// Stream sends a streaming request to the resolved provider.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	p, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = p.Name()
	}
	return p.Stream(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, p := range c.providers {
		if closer, ok := p.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
