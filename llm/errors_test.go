package llm

import (
	"errors"
	"testing"
)

// Every concrete type must satisfy error through its embedded base.
var _ = []error{
	(*SDKError)(nil),
	(*ProviderError)(nil),
	(*AuthenticationError)(nil),
	(*AccessDeniedError)(nil),
	(*NotFoundError)(nil),
	(*InvalidRequestError)(nil),
	(*RateLimitError)(nil),
	(*ServerError)(nil),
	(*ContentFilterError)(nil),
	(*ContextLengthError)(nil),
	(*RequestTimeoutError)(nil),
	(*AbortError)(nil),
	(*NetworkError)(nil),
	(*StreamFailure)(nil),
	(*ConfigurationError)(nil),
}

func TestNonProviderErrorMessages(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	var err error = &NetworkError{SDKError: SDKError{Message: "request failed", Cause: cause}}

	if got := err.Error(); got != "request failed: dial tcp: connection refused" {
		t.Errorf("unexpected error string: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}

	var abort error = &AbortError{SDKError: SDKError{Message: "request aborted"}}
	if abort.Error() != "request aborted" {
		t.Errorf("unexpected abort message: %q", abort.Error())
	}
}

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{408, true},
		{413, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{599, true},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "openai", nil)
		if got := IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, got)
		}
	}
}

func TestErrorFromStatusCodeTypes(t *testing.T) {
	if _, ok := ErrorFromStatusCode(401, "m", "p", nil).(*AuthenticationError); !ok {
		t.Error("401 should map to AuthenticationError")
	}
	if _, ok := ErrorFromStatusCode(429, "m", "p", nil).(*RateLimitError); !ok {
		t.Error("429 should map to RateLimitError")
	}
	if _, ok := ErrorFromStatusCode(500, "m", "p", nil).(*ServerError); !ok {
		t.Error("500 should map to ServerError")
	}
	if _, ok := ErrorFromStatusCode(413, "m", "p", nil).(*ContextLengthError); !ok {
		t.Error("413 should map to ContextLengthError")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"auth error", &AuthenticationError{}, false},
		{"access denied", &AccessDeniedError{}, false},
		{"not found", &NotFoundError{}, false},
		{"invalid request", &InvalidRequestError{}, false},
		{"context length", &ContextLengthError{}, false},
		{"content filter", &ContentFilterError{}, false},
		{"config error", &ConfigurationError{}, false},
		{"abort", &AbortError{}, false},
		{"rate limit", &RateLimitError{ProviderError: ProviderError{Retryable: true}}, true},
		{"server error", &ServerError{ProviderError: ProviderError{Retryable: true}}, true},
		{"network error", &NetworkError{}, true},
		{"stream failure", &StreamFailure{}, true},
		{"timeout error", &RequestTimeoutError{}, true},
		{"unknown error", errors.New("unknown"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, got)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ServerError{ProviderError: ProviderError{
		Base:       SDKError{Message: "upstream failed", Cause: cause},
		Provider:   "openai",
		StatusCode: 500,
		Retryable:  true,
	}}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause through Unwrap")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
}
