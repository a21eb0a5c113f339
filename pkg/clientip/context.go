package clientip

import (
	"context"
)

// clientIPContextKey keys the extracted client IP in request context
type clientIPContextKey struct{}

// SetIPToContext stores the client IP in the context so downstream
// consumers (webhook source checks, rate-limit keys) read one value
func SetIPToContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// GetIPFromContext retrieves the client IP placed by Middleware; empty
// when the middleware did not run
func GetIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
