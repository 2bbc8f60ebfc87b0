package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	err := Do(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	failure := errors.New("still broken")
	attempts := 0
	policy := Policy{MaxAttempts: 3}
	err := Do(context.Background(), policy, func(context.Context) error {
		attempts++
		return failure
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped operation error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	attempts := 0
	policy := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := Do(context.Background(), policy, func(context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("non-retryable error must not be reported as exhaustion")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 10, InitialBackoff: time.Hour}
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, policy, func(context.Context) error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt before the backoff wait, got %d", attempts)
	}
}

func TestDoRunsAtLeastOnce(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Do(context.Background(), Policy{}, func(context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt, got %d", attempts)
	}
}
