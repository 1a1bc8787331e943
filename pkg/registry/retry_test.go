package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryWithBackoff_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() (time.Duration, error) {
		attempts++
		return 0, nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryWithBackoff_RetriesServerErrors(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() (time.Duration, error) {
		attempts++
		if attempts < 3 {
			return 0, &RegistryError{StatusCode: 500, ErrorClass: ErrorClassServer, Message: "boom"}
		}
		return 0, nil
	})

	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	clientErr := &RegistryError{StatusCode: 400, ErrorClass: ErrorClassClient, Message: "bad request"}
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() (time.Duration, error) {
		attempts++
		return 0, clientErr
	})

	if !errors.Is(err, clientErr) {
		t.Errorf("expected the client error unwrapped, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not be retried)", attempts)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() (time.Duration, error) {
		attempts++
		return 0, &RegistryError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "down"}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_HonorsRetryAfter(t *testing.T) {
	attempts := 0
	start := time.Now()
	retryAfter := 60 * time.Millisecond

	err := retryWithBackoff(context.Background(), fastRetryConfig(), func() (time.Duration, error) {
		attempts++
		if attempts == 1 {
			return retryAfter, &RegistryError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, Message: "slow down"}
		}
		return 0, nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < retryAfter {
		t.Errorf("retried after %v, must wait at least the Retry-After of %v", elapsed, retryAfter)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastRetryConfig()
	cfg.InitialBackoff = 5 * time.Second // force a long wait

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, cfg, func() (time.Duration, error) {
		attempts++
		return 0, &RegistryError{StatusCode: 500, ErrorClass: ErrorClassServer, Message: "boom"}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("expected ErrContextCancelled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
