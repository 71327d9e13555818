package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a Client with a token-bucket limiter so a burst of
// agent turns (e.g. a parallel decomposition) cannot exceed a configured
// requests-per-second budget against a single provider. It is process-
// local: each provider instance gets its own limiter at construction time.
type RateLimiter struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimiter wraps next with a limiter allowing ratePerSecond requests
// per second and a burst of burst. A ratePerSecond of zero disables
// limiting (the limiter is unlimited).
func NewRateLimiter(next Client, ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Name delegates to the wrapped client.
func (l *RateLimiter) Name() string { return l.next.Name() }

// Complete waits for limiter capacity before delegating to the wrapped
// client's Complete.
func (l *RateLimiter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Complete(ctx, req)
}
