package environment

import (
	"context"
	"log/slog"
)

// LoggerExtractor exposes the environment name as an env log attribute on
// every record logged within a request.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := FromContext(ctx); env != "" {
			return slog.String("env", string(env)), true
		}
		return slog.Attr{}, false
	}
}
