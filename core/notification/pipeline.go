package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/command"
	"github.com/clinicflow/clinicflow/core/email"
	"github.com/clinicflow/clinicflow/core/email/templates"
	"github.com/clinicflow/clinicflow/core/email/templates/components"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/pkg/async"
)

// Pipeline schedules, delivers and dead-letters user notifications.
type Pipeline struct {
	enqueuer        Enqueuer
	store           Store
	cache           Cache
	sink            Sink
	directory       UserDirectory
	mailer          email.EmailSender
	alerter         Alerter
	queue           string
	deadLetterTopic string
	maxAttempts     int
	backoffBase     time.Duration
	logger          *slog.Logger
	now             func() time.Time

	scheduled    atomic.Int64
	delivered    atomic.Int64
	deadLettered atomic.Int64
	userEmails   atomic.Int64
	pushFailures atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Scheduled    int64 // tasks enqueued
	Delivered    int64 // tasks persisted and pushed
	DeadLettered int64 // exhausted tasks handled
	UserEmails   int64 // failure emails sent to users
	PushFailures int64 // direct failure pushes that could not be sent
}

// NewPipeline creates a pipeline scheduling through enqueuer and persisting into store.
func NewPipeline(enqueuer Enqueuer, store Store, opts ...Option) (*Pipeline, error) {
	if enqueuer == nil {
		return nil, ErrEnqueuerNil
	}
	if store == nil {
		return nil, ErrStoreNil
	}

	p := &Pipeline{
		enqueuer:        enqueuer,
		store:           store,
		queue:           QueueName,
		deadLetterTopic: DeadLetterTopic,
		maxAttempts:     DefaultMaxAttempts,
		backoffBase:     DefaultBackoffBase,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SendNotifications schedules delivery of message to userID after delay.
// A zero delay delivers as soon as a worker picks the task up.
func (p *Pipeline) SendNotifications(ctx context.Context, userID, message, traceID string, delay time.Duration, metadata map[string]any) (uuid.UUID, error) {
	if userID == "" {
		return uuid.Nil, ErrUserIDRequired
	}
	if message == "" {
		return uuid.Nil, ErrMessageRequired
	}
	if delay < 0 {
		delay = 0
	}

	task := Task{
		UserID:   userID,
		Message:  message,
		Metadata: metadata,
		TraceID:  traceID,
		Delay:    delay,
	}

	id, err := p.enqueuer.Enqueue(ctx, task,
		queue.WithQueue(p.queue),
		queue.WithTaskName(TaskDeliver),
		queue.WithDelay(delay),
		queue.WithMaxAttempts(p.maxAttempts),
		queue.WithBackoff(queue.Exponential(p.backoffBase)),
		queue.WithDeadLetterTopic(p.deadLetterTopic),
		queue.WithTraceID(traceID),
		queue.WithOwner(userID),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule notification for %s: %w", userID, err)
	}

	p.scheduled.Add(1)
	p.logger.DebugContext(ctx, "notification scheduled",
		logger.UserID(userID),
		logger.TraceID(traceID),
		logger.Delay(delay),
		logger.JobID(id.String()))

	return id, nil
}

// Deliver persists t, drops the user's cached list and pushes the
// notification to live connections. It is the delivery task handler.
func (p *Pipeline) Deliver(ctx context.Context, t Task) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	n := &Notification{
		ID:        p.notificationID(ctx),
		UserID:    t.UserID,
		Message:   t.Message,
		Metadata:  t.Metadata,
		TraceID:   t.TraceID,
		CreatedAt: p.now().UTC(),
	}

	if err := p.store.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, t.UserID); err != nil {
			return fmt.Errorf("invalidate notification cache: %w", err)
		}
	}

	if p.sink != nil {
		if err := p.sink.Send(ctx, t.UserID, EventNew, n); err != nil {
			return fmt.Errorf("push notification: %w", err)
		}
	}

	p.delivered.Add(1)
	p.logger.DebugContext(ctx, "notification delivered",
		logger.UserID(t.UserID),
		logger.TraceID(t.TraceID),
		slog.String("notification_id", n.ID.String()))

	return nil
}

// notificationID reuses the task id so a retried delivery upserts the same row.
func (p *Pipeline) notificationID(ctx context.Context) uuid.UUID {
	if info, ok := queue.TaskInfoFromContext(ctx); ok {
		if id, err := uuid.Parse(info.ID); err == nil {
			return id
		}
	}
	return uuid.New()
}

// TaskHandler returns the queue handler for delivery tasks.
func (p *Pipeline) TaskHandler() queue.Handler {
	return queue.NewNamedTaskHandler(TaskDeliver, p.Deliver)
}

// Recent returns the user's recent notifications, read through the cache.
func (p *Pipeline) Recent(ctx context.Context, userID string) ([]Notification, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	if p.cache != nil {
		list, ok, err := p.cache.Get(ctx, userID)
		if err != nil {
			p.logger.WarnContext(ctx, "notification cache read failed", logger.UserID(userID), logger.Error(err))
		} else if ok {
			return list, nil
		}
	}

	list, err := p.store.ListRecent(ctx, userID, DefaultRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, userID, list); err != nil {
			p.logger.WarnContext(ctx, "notification cache write failed", logger.UserID(userID), logger.Error(err))
		}
	}

	return list, nil
}

// NotifyFailure pushes a command failure response directly to the user,
// bypassing the queue.
func (p *Pipeline) NotifyFailure(ctx context.Context, userID string, resp command.FailureResponse) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if p.sink == nil {
		p.pushFailures.Add(1)
		return fmt.Errorf("notify failure: no real-time sink configured")
	}
	if err := p.sink.Send(ctx, userID, command.EventCommandFailed, resp); err != nil {
		p.pushFailures.Add(1)
		return fmt.Errorf("notify failure: %w", err)
	}
	return nil
}

// HandleDeadLetter runs the two obligations for an exhausted delivery: tell
// the user by email and alert the administrator. Each runs isolated from the
// other's errors and panics, so the admin gets exactly one alert either way.
func (p *Pipeline) HandleDeadLetter(ctx context.Context, job queue.DeadJob) error {
	p.deadLettered.Add(1)

	var t Task
	if err := json.Unmarshal(job.Payload, &t); err != nil {
		p.logger.WarnContext(ctx, "dead-letter payload is not a notification task, using job identifiers",
			logger.JobID(job.JobID),
			logger.Error(errors.Join(ErrDeadLetterPayload, err)))
		t = Task{}
	}
	if t.UserID == "" {
		t.UserID = job.OwnerID
	}
	if t.TraceID == "" {
		t.TraceID = job.TraceID
	}

	log := p.logger.With(
		logger.JobID(job.JobID),
		logger.UserID(t.UserID),
		logger.TraceID(t.TraceID),
		logger.Attempts(job.Attempts))
	log.ErrorContext(ctx, "notification delivery exhausted", slog.String("reason", job.Error))

	// Both duties outlive a cancelled consumer: the dead letter is acked
	// once this returns.
	dctx := context.WithoutCancel(ctx)
	err := async.JoinAll(
		async.Exec(dctx, t, func(ctx context.Context, t Task) error {
			if err := p.reportToUser(ctx, job, t); err != nil {
				log.ErrorContext(ctx, "failed to email user about undelivered notification", logger.Error(err))
				return err
			}
			p.userEmails.Add(1)
			return nil
		}),
		async.Exec(dctx, t, func(ctx context.Context, t Task) error {
			p.alert(ctx, escalation.Alert{
				Severity: escalation.SeverityWarning,
				Subject:  "Notification delivery failed",
				Reason:   job.Error,
				TraceID:  t.TraceID,
				UserID:   t.UserID,
				JobID:    job.JobID,
				Source:   DeadLetterTopic,
				Details: map[string]string{
					"attempts": strconv.Itoa(job.Attempts),
					"queue":    job.Queue,
					"message":  t.Message,
				},
			})
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("notification dead letter %s: %w", job.JobID, err)
	}
	return nil
}

// DeadLetterHandler returns the broker handler for the notification dead-letter topic.
func (p *Pipeline) DeadLetterHandler() broker.Handler {
	return queue.NewDeadJobHandler(p.HandleDeadLetter)
}

func (p *Pipeline) reportToUser(ctx context.Context, job queue.DeadJob, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", async.ErrPanic, r)
		}
	}()
	return p.emailUser(ctx, job, t)
}

func (p *Pipeline) emailUser(ctx context.Context, job queue.DeadJob, t Task) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}
	if p.directory == nil {
		return ErrNoDirectory
	}
	if p.mailer == nil {
		return ErrNoMailer
	}

	user, err := p.directory.FindByID(ctx, t.UserID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", t.UserID, err)
	}
	if strings.TrimSpace(user.Email) == "" {
		return ErrNoEmailAddress
	}

	body, err := templates.Render(ctx, failureEmail(user, t, job))
	if err != nil {
		return errors.Join(email.ErrFailedToSendEmail, err)
	}

	return p.mailer.SendEmail(ctx, email.SendEmailParams{
		SendTo:   user.Email,
		Subject:  "We could not deliver a notification",
		BodyHTML: body,
		Tag:      "notification-failed",
	})
}

func (p *Pipeline) alert(ctx context.Context, a escalation.Alert) {
	if p.alerter == nil {
		p.logger.WarnContext(ctx, "no alerter configured, alert dropped",
			logger.Severity(string(a.Severity)), slog.String("subject", a.Subject))
		return
	}
	p.alerter.Alert(ctx, a)
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Scheduled:    p.scheduled.Load(),
		Delivered:    p.delivered.Load(),
		DeadLettered: p.deadLettered.Load(),
		UserEmails:   p.userEmails.Load(),
		PushFailures: p.pushFailures.Load(),
	}
}

func failureEmail(user User, t Task, job queue.DeadJob) templ.Component {
	greeting := "Hello,"
	if user.Name != "" {
		greeting = "Hello " + user.Name + ","
	}
	ref := t.TraceID
	if ref == "" {
		ref = job.JobID
	}

	return components.Layout(
		components.Header("Notification not delivered", ""),
		components.Text(components.String(greeting)),
		components.Text(components.String(fmt.Sprintf("We were unable to deliver the following notification after %d attempts:", job.Attempts))),
		components.TextWarning(components.String(t.Message)),
		components.TextSecondary(components.String("Please check your appointments in the app. Reference: "+ref)),
	)
}
