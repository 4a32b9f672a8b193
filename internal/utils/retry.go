package utils

import (
	"context"
	"fmt"
	"time"

	"cryptoSignalBot/internal/ports"

	"github.com/jpillora/backoff"
)

// RetryPolicy bounds the attempts and delays of Retry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts starting at one second.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    8 * time.Second,
}

// NewBackoff builds the exponential backoff used between attempts.
func (p RetryPolicy) NewBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.BaseDelay,
		Max:    p.MaxDelay,
		Factor: 2,
		Jitter: true,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, the context is done,
// or the policy's attempts are used up. The final failure wraps ports.ErrRetriesExhausted.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := policy.NewBackoff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !ports.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s failed: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, attempts, ports.ErrRetriesExhausted, lastErr)
}

// RetryValue is Retry for functions returning a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, policy, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
