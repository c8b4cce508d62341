// Package logger provides structured logging helpers built on log/slog.
//
// New builds a *slog.Logger for a given environment and optionally decorates
// the handler with context extractors, so values such as the trace id of the
// command being processed are attached to every record logged with a context:
//
//	log := logger.New(
//		logger.WithProduction("clinicflow"),
//		logger.WithContextExtractors(logger.TraceIDExtractor),
//	)
//
//	ctx := logger.WithTraceID(ctx, env.TraceID)
//	log.InfoContext(ctx, "command routed", logger.Topic("appointment-commands"))
//
// The attribute helpers follow the empty Attr pattern: helpers given a nil
// error or an empty identifier return slog.Attr{}, which slog drops, so call
// sites never need nil checks.
package logger
