package escalation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"

	"github.com/clinicflow/clinicflow/core/email"
	"github.com/clinicflow/clinicflow/core/email/templates"
	"github.com/clinicflow/clinicflow/core/email/templates/components"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/pkg/ratelimiter"
)

// Severity distinguishes ordinary dead-letter alerts from failures of the
// failure path itself.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	// CriticalSubjectPrefix marks critical alert subjects.
	CriticalSubjectPrefix = "[CRITICAL]"

	// TagCritical and TagWarning are the email tags for each severity.
	TagCritical = "critical-alert"
	TagWarning  = "admin-alert"
)

// Alert describes one escalation.
type Alert struct {
	Severity Severity
	Subject  string
	Reason   string
	TraceID  string
	UserID   string
	JobID    string
	Source   string
	Details  map[string]string
}

// Escalator sends alerts to the administrator mailbox.
type Escalator struct {
	sender  email.EmailSender
	adminTo string
	logger  *slog.Logger
	timeout time.Duration
	limiter *ratelimiter.Bucket

	sent      atomic.Int64
	failed    atomic.Int64
	throttled atomic.Int64
}

// Option configures an Escalator.
type Option func(*Escalator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Escalator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout bounds a single alert delivery.
func WithTimeout(d time.Duration) Option {
	return func(e *Escalator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithThrottle caps warning alerts per source and subject. Critical alerts
// are never throttled.
func WithThrottle(b *ratelimiter.Bucket) Option {
	return func(e *Escalator) {
		e.limiter = b
	}
}

// New creates an Escalator sending to adminTo.
func New(sender email.EmailSender, adminTo string, opts ...Option) *Escalator {
	e := &Escalator{
		sender:  sender,
		adminTo: adminTo,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats reports delivered and failed alerts.
type Stats struct {
	Sent      int64
	Failed    int64
	Throttled int64
}

// Stats returns current counters.
func (e *Escalator) Stats() Stats {
	return Stats{Sent: e.sent.Load(), Failed: e.failed.Load(), Throttled: e.throttled.Load()}
}

// Alert delivers a best-effort admin email. It never returns an error and
// never lets a panic escape.
func (e *Escalator) Alert(ctx context.Context, a Alert) {
	if a.Severity == "" {
		a.Severity = SeverityWarning
	}

	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.logger.ErrorContext(ctx, "escalation panicked",
				logger.Severity(string(a.Severity)),
				logger.TraceID(a.TraceID),
				logger.Panic(r))
		}
	}()

	if e.throttle(ctx, a) {
		e.throttled.Add(1)
		e.logger.WarnContext(ctx, "admin alert throttled",
			logger.Severity(string(a.Severity)),
			slog.String("subject", a.Subject),
			slog.String("source", a.Source),
			slog.String("reason", a.Reason),
			logger.TraceID(a.TraceID))
		return
	}

	if err := e.send(ctx, a); err != nil {
		e.failed.Add(1)
		e.logger.ErrorContext(ctx, "escalation failed",
			logger.Severity(string(a.Severity)),
			logger.TraceID(a.TraceID),
			logger.Error(&Error{Alert: a, Err: err}))
		return
	}

	e.sent.Add(1)
	e.logger.WarnContext(ctx, "admin alerted",
		logger.Severity(string(a.Severity)),
		slog.String("subject", a.Subject),
		logger.TraceID(a.TraceID))
}

func (e *Escalator) throttle(ctx context.Context, a Alert) bool {
	if e.limiter == nil || a.Severity == SeverityCritical {
		return false
	}
	res, err := e.limiter.Allow(ctx, a.Source+"|"+a.Subject)
	if err != nil {
		// A limiter failure lets the alert through.
		return false
	}
	return !res.Allowed()
}

func (e *Escalator) send(ctx context.Context, a Alert) error {
	if e.sender == nil {
		return ErrNoSender
	}
	if e.adminTo == "" {
		return ErrNoRecipient
	}

	body, err := templates.Render(ctx, alertEmail(a))
	if err != nil {
		return fmt.Errorf("render alert body: %w", err)
	}

	// Detached from the caller so a cancelled consumer context still alerts.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	return e.sender.SendEmail(sendCtx, email.SendEmailParams{
		SendTo:   e.adminTo,
		Subject:  Subject(a),
		BodyHTML: body,
		Tag:      Tag(a.Severity),
	})
}

// Subject returns the email subject for an alert.
func Subject(a Alert) string {
	subject := a.Subject
	if subject == "" {
		subject = "workflow failure"
	}
	if a.Severity == SeverityCritical {
		return CriticalSubjectPrefix + " " + subject
	}
	return subject
}

// Tag returns the email tag for a severity.
func Tag(s Severity) string {
	if s == SeverityCritical {
		return TagCritical
	}
	return TagWarning
}

func alertEmail(a Alert) templ.Component {
	reason := a.Reason
	if reason == "" {
		reason = "unknown"
	}

	reasonBlock := components.Text(components.String("Reason: " + reason))
	if a.Severity == SeverityCritical {
		reasonBlock = components.TextWarning(components.String("Reason: " + reason))
	}

	rows := []components.Row{
		{Label: "Trace ID", Value: a.TraceID},
		{Label: "User ID", Value: a.UserID},
		{Label: "Job ID", Value: a.JobID},
		{Label: "Source", Value: a.Source},
	}
	for _, k := range slices.Sorted(maps.Keys(a.Details)) {
		rows = append(rows, components.Row{Label: k, Value: a.Details[k]})
	}

	return components.Layout(
		components.Header(Subject(a), "Severity: "+string(a.Severity)),
		reasonBlock,
		components.Details(rows...),
	)
}
