package ratelimiter

import "errors"

var (
	// ErrInvalidConfig is returned when a bucket config has non-positive
	// capacity, refill rate, or interval.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidTokenCount is returned when a consume call asks for zero or
	// negative tokens.
	ErrInvalidTokenCount = errors.New("invalid token count")

	// ErrContextCancelled is returned when the caller's context ends before
	// the store answers.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached, such as a lost Redis connection.
	ErrStoreUnavailable = errors.New("store unavailable")
)
