package interfaces

import "context"

// RateLimiter decides whether another request for key fits in its window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
