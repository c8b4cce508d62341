package command

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clinicflow/clinicflow/core/logger"
)

// HandlerFunc processes the payload of one command.
type HandlerFunc func(ctx context.Context, data json.RawMessage, traceID string) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

func chain(h HandlerFunc, mw []Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// LoggingMiddleware logs handler duration and outcome.
func LoggingMiddleware(l *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, data json.RawMessage, traceID string) error {
			start := time.Now()
			err := next(ctx, data, traceID)
			attrs := []any{
				logger.TraceID(traceID),
				logger.Action(string(ActionFromContext(ctx))),
				logger.RetryCount(RetryCountFromContext(ctx)),
				logger.Elapsed(start),
			}
			if err != nil {
				l.WarnContext(ctx, "command handler failed", append(attrs, logger.Error(err))...)
				return err
			}
			l.DebugContext(ctx, "command handled", attrs...)
			return nil
		}
	}
}

// RecipientFunc extracts the originating user id from a command payload.
type RecipientFunc func(data json.RawMessage) string

// DefaultRecipient reads the "userId" field of the payload.
func DefaultRecipient(data json.RawMessage) string {
	return gjson.GetBytes(data, "userId").String()
}
