package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum spacing between outbound calls.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows one call per spacing. A non-positive spacing disables limiting.
func NewRateLimiter(spacing time.Duration) *RateLimiter {
	if spacing <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(spacing), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
