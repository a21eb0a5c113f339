package httpserver

import "errors"

var (
	// ErrStart wraps listener and serve failures.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown wraps a graceful shutdown that exceeded its deadline.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
)
