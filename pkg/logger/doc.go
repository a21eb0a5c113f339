// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New creates a *slog.Logger configured by Option functions. These options
// select the output format (text or json), set the minimum level, supply
// default attributes applied to every record, and register ContextExtractor
// callbacks that pull request-scoped attributes (correlation ID, environment)
// out of the context on every Handle call.
//
// # Architecture
//
// New picks the concrete slog.Handler (slog.NewTextHandler or
// slog.NewJSONHandler) from the configured Format, then wraps it with
// LogHandlerDecorator, which runs the registered ContextExtractor callbacks
// before delegating to the underlying handler.
//
// Helper constructors such as Group, Error, UserID, PlanID and Reference
// live in attr.go and keep attribute naming consistent across the codebase.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Environment, cfg.AppName),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "charge applied",
//		logger.UserID(userID),
//		logger.Reference(ref),
//	)
//
// # Configuration
//
//   - WithDevelopment / WithStaging / WithProduction set sensible defaults
//     per environment; WithEnvironment picks among them by name.
//   - WithFormat / WithTextFormatter / WithJSONFormatter override the
//     output format.
//   - WithLevel sets a custom slog.Level.
//   - WithAttr attaches static attributes.
//   - WithContextExtractors / WithContextValue inject attributes from
//     context.
//
// # Error Handling
//
// Error and Errors produce attributes only when the supplied error is
// non-nil, allowing calls like
//
//	log.Info("operation finished", logger.Error(err))
//
// without an additional nil check.
package logger
