package command

import (
	"log/slog"
	"time"
)

// DefaultMaxRetries is the retry ceiling for a command.
const DefaultMaxRetries = 5

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMaxRetries sets how many times a failing command is republished before
// it is dead-lettered.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithNotifier sets the sink used to push failure responses to users.
func WithNotifier(n Notifier) RouterOption {
	return func(r *Router) {
		r.notifier = n
	}
}

// WithAlerter sets the administrator escalation sink.
func WithAlerter(a Alerter) RouterOption {
	return func(r *Router) {
		r.alerter = a
	}
}

// WithRecipientFunc overrides how the originating user is found in a payload.
func WithRecipientFunc(fn RecipientFunc) RouterOption {
	return func(r *Router) {
		if fn != nil {
			r.recipient = fn
		}
	}
}

// WithMiddleware appends handler middleware. Middleware runs in the order given.
func WithMiddleware(mw ...Middleware) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
}

// WithPartitionByEntity publishes envelopes keyed by their PartitionKey when
// the broker supports keyed publishing.
func WithPartitionByEntity(enabled bool) RouterOption {
	return func(r *Router) {
		r.partitionByEntity = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for dead-letter timestamps.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}
