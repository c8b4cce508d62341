package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/logger"
)

// Notifier pushes a failure response directly to a user, bypassing the broker.
type Notifier interface {
	NotifyFailure(ctx context.Context, userID string, resp FailureResponse) error
}

// Alerter raises administrator alerts. Implementations must not fail.
type Alerter interface {
	Alert(ctx context.Context, a escalation.Alert)
}

// Router applies the retry and dead-letter policy around command handlers.
type Router struct {
	publisher         broker.Publisher
	handlers          map[Action]HandlerFunc
	middleware        []Middleware
	maxRetries        int
	notifier          Notifier
	alerter           Alerter
	recipient         RecipientFunc
	partitionByEntity bool
	logger            *slog.Logger
	now               func() time.Time
	mu                sync.RWMutex

	handled      atomic.Int64
	succeeded    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
	rejected     atomic.Int64
	fallbacks    atomic.Int64
	dropped      atomic.Int64
	terminal     atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Handled      int64
	Succeeded    int64
	Retried      int64
	DeadLettered int64
	Rejected     int64
	Fallbacks    int64
	Dropped      int64
	Terminal     int64
}

// NewRouter creates a router publishing retries and dead letters through p.
func NewRouter(p broker.Publisher, opts ...RouterOption) *Router {
	r := &Router{
		publisher:  p,
		handlers:   make(map[Action]HandlerFunc),
		maxRetries: DefaultMaxRetries,
		recipient:  DefaultRecipient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the handler for an action. Panics on duplicates.
func (r *Router) Handle(action Action, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[action]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateHandler, action))
	}
	r.handlers[action] = h
}

// MaxRetries returns the configured retry ceiling.
func (r *Router) MaxRetries() int {
	return r.maxRetries
}

// Publish sends env to topic.
func (r *Router) Publish(ctx context.Context, topic string, env Envelope) error {
	key := ""
	if r.partitionByEntity {
		key = env.PartitionKey()
	}
	return broker.PublishJSON(ctx, r.publisher, topic, key, env)
}

// Dispatch routes env to the handler registered for its action.
// Unknown actions are logged and dropped.
func (r *Router) Dispatch(ctx context.Context, topic string, env Envelope) error {
	r.mu.RLock()
	h, ok := r.handlers[env.Action]
	r.mu.RUnlock()

	if !ok {
		r.dropped.Add(1)
		r.logger.WarnContext(ctx, "dropping command with unknown action",
			logger.Topic(topic),
			logger.Action(string(env.Action)),
			logger.TraceID(env.TraceID))
		return fmt.Errorf("%w: %s", ErrUnknownAction, env.Action)
	}

	return r.Route(ctx, topic, env, h)
}

// Route invokes h for env and applies the failure policy. It returns a
// *TransportError when a retry or dead letter could not be published and nil
// once the command has been handled, retried, dead-lettered or rejected.
func (r *Router) Route(ctx context.Context, topic string, env Envelope, h HandlerFunc) error {
	r.handled.Add(1)

	ctx = logger.WithTraceID(ctx, env.TraceID)
	ctx = WithAction(ctx, env.Action)
	ctx = WithRetryCount(ctx, env.RetryCount)

	err := r.invoke(ctx, env, h)
	if err == nil {
		r.succeeded.Add(1)
		return nil
	}

	// The message is acked once Route returns, so the retry or dead letter
	// must be published even when the consumer is shutting down.
	ctx = context.WithoutCancel(ctx)

	if !IsRetryable(err) {
		r.rejected.Add(1)
		r.logger.InfoContext(ctx, "command rejected",
			logger.Topic(topic),
			logger.Action(string(env.Action)),
			logger.Error(err))
		r.pushFailure(ctx, env, err.Error())
		return nil
	}

	if env.RetryCount < r.maxRetries {
		next := env.Next()
		if pubErr := r.Publish(ctx, topic, next); pubErr != nil {
			return r.transportFailure(ctx, env, &TransportError{
				Topic: topic, Op: "retry", TraceID: env.TraceID, Err: pubErr,
			})
		}
		r.retried.Add(1)
		r.logger.WarnContext(ctx, "command scheduled for retry",
			logger.Topic(topic),
			logger.Action(string(env.Action)),
			logger.RetryCount(next.RetryCount),
			logger.Error(err))
		return nil
	}

	dlqTopic := DeadLetterTopic(topic)
	dl := NewDeadLetter(env, err, r.now())
	if pubErr := broker.PublishJSON(ctx, r.publisher, dlqTopic, "", dl); pubErr != nil {
		return r.transportFailure(ctx, env, &TransportError{
			Topic: dlqTopic, Op: "dead letter", TraceID: env.TraceID, Err: pubErr,
		})
	}

	r.deadLettered.Add(1)
	r.logger.ErrorContext(ctx, "command moved to dead-letter topic",
		logger.Topic(dlqTopic),
		logger.Action(string(env.Action)),
		logger.RetryCount(env.RetryCount),
		logger.Error(err))
	return nil
}

func (r *Router) invoke(ctx context.Context, env Envelope, h HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{
				Action:  env.Action,
				TraceID: env.TraceID,
				Err:     fmt.Errorf("%w: %v", ErrHandlerPanic, rec),
			}
		}
	}()

	if err := chain(h, r.middleware)(ctx, env.Data, env.TraceID); err != nil {
		if !IsRetryable(err) {
			return err
		}
		var he *HandlerError
		if errors.As(err, &he) {
			return err
		}
		return &HandlerError{Action: env.Action, TraceID: env.TraceID, Err: err}
	}
	return nil
}

func (r *Router) transportFailure(ctx context.Context, env Envelope, err *TransportError) error {
	r.logger.ErrorContext(ctx, "failed to publish command",
		logger.Topic(err.Topic),
		slog.String("op", err.Op),
		logger.RetryCount(env.RetryCount),
		logger.Error(err))
	r.fallback(ctx, env, "Your request could not be processed. Please try again later.")
	return err
}

// fallback pushes a failure response straight to the originating user
// after the broker refused a retry or dead letter.
func (r *Router) fallback(ctx context.Context, env Envelope, message string) {
	r.fallbacks.Add(1)
	r.pushFailure(ctx, env, message)
}

func (r *Router) pushFailure(ctx context.Context, env Envelope, message string) {
	if err := r.notifyUser(ctx, env, message); err != nil {
		r.logger.ErrorContext(ctx, "fallback notification failed", logger.Error(err))
		r.alert(ctx, escalation.Alert{
			Severity: escalation.SeverityWarning,
			Subject:  "failed to notify user about a failed command",
			Reason:   err.Error(),
			TraceID:  env.TraceID,
			UserID:   r.recipient(env.Data),
			Source:   string(env.Action),
		})
	}
}

func (r *Router) notifyUser(ctx context.Context, env Envelope, message string) error {
	if r.notifier == nil {
		r.logger.WarnContext(ctx, "no failure notifier configured")
		return nil
	}
	userID := r.recipient(env.Data)
	if userID == "" {
		r.logger.WarnContext(ctx, "command payload has no recipient, failure not pushed")
		return nil
	}
	return r.notifier.NotifyFailure(ctx, userID, NewFailureResponse(env.TraceID, message))
}

func (r *Router) alert(ctx context.Context, a escalation.Alert) {
	if r.alerter == nil {
		r.logger.ErrorContext(ctx, "no alerter configured, alert dropped",
			logger.Severity(string(a.Severity)),
			slog.String("subject", a.Subject))
		return
	}
	r.alerter.Alert(ctx, a)
}

// Consume returns a broker handler that decodes envelopes from topic and dispatches them.
// Malformed messages are logged and dropped.
func (r *Router) Consume(topic string) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		env, err := DecodeEnvelope(msg.Data)
		if err != nil {
			r.dropped.Add(1)
			r.logger.ErrorContext(ctx, "dropping malformed command",
				logger.Topic(topic),
				logger.Error(err))
			return nil
		}
		return r.Dispatch(ctx, topic, env)
	}
}

// ConsumeDeadLetters returns the terminal handler for "<topic>-dlq".
func (r *Router) ConsumeDeadLetters(topic string) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		var dl DeadLetter
		if err := json.Unmarshal(msg.Data, &dl); err != nil {
			r.dropped.Add(1)
			r.logger.ErrorContext(ctx, "dropping malformed dead letter",
				logger.Topic(DeadLetterTopic(topic)),
				logger.Error(err))
			return nil
		}
		r.HandleDeadLetter(ctx, topic, dl)
		return nil
	}
}

// HandleDeadLetter is the end of the command failure path. It alerts the
// administrator and tells the user the request failed. It never republishes;
// when its own work fails it escalates and stops.
func (r *Router) HandleDeadLetter(ctx context.Context, topic string, dl DeadLetter) {
	ctx = logger.WithTraceID(context.WithoutCancel(ctx), dl.TraceID)
	r.terminal.Add(1)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "dead-letter handler panicked", logger.Panic(rec))
			r.alert(ctx, escalation.Alert{
				Severity: escalation.SeverityCritical,
				Subject:  "dead-letter handler panicked",
				Reason:   fmt.Sprint(rec),
				TraceID:  dl.TraceID,
				Source:   DeadLetterTopic(topic),
			})
		}
	}()

	r.logger.ErrorContext(ctx, "command failed permanently",
		logger.Topic(DeadLetterTopic(topic)),
		logger.Action(string(dl.Action)),
		logger.RetryCount(dl.RetryCount),
		slog.String("reason", dl.FailureReason))

	env := dl.Envelope()
	userID := r.recipient(dl.Data)

	r.alert(ctx, escalation.Alert{
		Severity: escalation.SeverityWarning,
		Subject:  fmt.Sprintf("command %s dead-lettered on %s", dl.Action, topic),
		Reason:   dl.FailureReason,
		TraceID:  dl.TraceID,
		UserID:   userID,
		Source:   DeadLetterTopic(topic),
		Details: map[string]string{
			"retries":   fmt.Sprint(dl.RetryCount),
			"failed_at": dl.FailedAt.Format(time.RFC3339),
		},
	})

	message := fmt.Sprintf("Your request failed after %d retries.", dl.RetryCount)
	if err := r.notifyUser(ctx, env, message); err != nil {
		r.logger.ErrorContext(ctx, "terminal failure notification failed", logger.Error(err))
		r.alert(ctx, escalation.Alert{
			Severity: escalation.SeverityCritical,
			Subject:  "dead-letter handling failed",
			Reason:   err.Error(),
			TraceID:  dl.TraceID,
			UserID:   userID,
			Source:   DeadLetterTopic(topic),
		})
	}
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	return Stats{
		Handled:      r.handled.Load(),
		Succeeded:    r.succeeded.Load(),
		Retried:      r.retried.Load(),
		DeadLettered: r.deadLettered.Load(),
		Rejected:     r.rejected.Load(),
		Fallbacks:    r.fallbacks.Load(),
		Dropped:      r.dropped.Load(),
		Terminal:     r.terminal.Load(),
	}
}
