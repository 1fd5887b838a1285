package llm

import (
	"context"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}

	for i, expected := range delays {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          5.0,
		Jitter:            false,
	}

	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetryPolicyDelayJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            true,
	}

	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", got)
		}
	}
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ServerError{ProviderError: ProviderError{
				Base: SDKError{Message: "server error"}, Retryable: true,
			}}
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected %q, got %q", "success", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{
			Base: SDKError{Message: "bad key"},
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &NetworkError{SDKError: SDKError{Message: "unreachable"}}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial call plus two retries.
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryHonorsRetryAfterCap(t *testing.T) {
	retryAfter := 120.0
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &RateLimitError{ProviderError: ProviderError{
			Base:       SDKError{Message: "slow down"},
			Retryable:  true,
			RetryAfter: &retryAfter,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// Retry-After of 120s exceeds MaxDelay, so no retry happens.
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 10, BackoffMultiplier: 1, MaxDelay: 10}
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
			return "", &NetworkError{SDKError: SDKError{Message: "unreachable"}}
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if _, ok := err.(*AbortError); !ok {
			t.Errorf("expected AbortError, got %T", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
