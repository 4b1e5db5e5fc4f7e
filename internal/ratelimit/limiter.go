package ratelimit

import "context"

// RateLimiter bounds outbound send throughput per scope (e.g. "smtp").
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
