// Package retry provides a bounded retry combinator for operations that
// fail transiently, such as optimistic-concurrency writes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted reports that every permitted attempt failed.
var ErrAttemptsExhausted = errors.New("retry.attempts_exhausted")

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	// MaxAttempts caps the total number of calls, including the first.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponentially growing delay. Zero means the
	// backoff never grows beyond InitialBackoff.
	MaxBackoff time.Duration
	// Retryable decides whether a failure is worth another attempt. A
	// nil predicate retries every error.
	Retryable func(error) bool
}

// DefaultPolicy retries three times with a short fixed-start backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Do invokes operation until it succeeds, the policy is exhausted, a
// non-retryable error occurs, or the context is cancelled. The last
// operation error is wrapped in the returned error.
func Do(ctx context.Context, policy Policy, operation func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	backoff := policy.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry cancelled: %w", ctxErr)
		}
		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}
		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, policy.MaxAttempts, lastErr)
}
