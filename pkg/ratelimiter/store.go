package ratelimiter

import (
	"context"
	"time"
)

// Store persists token bucket state. The in-memory store serves a single
// instance; the Redis store shares buckets across replicas so webhook
// senders see one consistent limit.
type Store interface {
	// ConsumeTokens attempts to consume the specified number of tokens.
	// Returns the remaining tokens and reset time.
	// If remaining is negative, the request should be denied.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}
