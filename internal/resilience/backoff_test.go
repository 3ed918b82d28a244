package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), BackoffConfig{}, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_NonRetryableErrorStopsImmediately(t *testing.T) {
	calls := 0
	wantErr := errors.New("bad request")
	err := Retry(context.Background(), BackoffConfig{Base: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable error should not retry)", calls)
	}
}

func TestRetry_RetryableErrorRetriesUpToMaxAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("service unavailable")
	err := Retry(context.Background(), BackoffConfig{Base: time.Millisecond, MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return MarkRetryable(wantErr)
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), BackoffConfig{Base: time.Millisecond, MaxAttempts: 5}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return MarkRetryable(errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, BackoffConfig{}, func(ctx context.Context) error {
		t.Fatal("fn should not be called when context is already cancelled")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestBackoffConfig_Defaults(t *testing.T) {
	cfg := BackoffConfig{}.withDefaults()
	if cfg.Base != 100*time.Millisecond {
		t.Errorf("Base = %v, want 100ms", cfg.Base)
	}
	if cfg.Factor != 2 {
		t.Errorf("Factor = %v, want 2", cfg.Factor)
	}
	if cfg.Cap != 5*time.Second {
		t.Errorf("Cap = %v, want 5s", cfg.Cap)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", cfg.MaxAttempts)
	}
}

func TestIsRetryable(t *testing.T) {
	plain := errors.New("plain")
	wrapped := MarkRetryable(plain)

	if IsRetryable(plain) {
		t.Error("plain error reported retryable")
	}
	if !IsRetryable(wrapped) {
		t.Error("wrapped error not reported retryable")
	}
	if !errors.Is(wrapped, plain) {
		t.Error("wrapped error does not unwrap to the original")
	}
}
