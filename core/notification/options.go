package notification

import (
	"log/slog"
	"time"

	"github.com/clinicflow/clinicflow/core/email"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxAttempts sets the total delivery attempts per notification.
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the base of the exponential retry backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.backoffBase = d
		}
	}
}

// WithQueue overrides the delivery queue name.
func WithQueue(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.queue = name
		}
	}
}

// WithDeadLetterTopic overrides the topic exhausted deliveries are published to.
func WithDeadLetterTopic(topic string) Option {
	return func(p *Pipeline) {
		if topic != "" {
			p.deadLetterTopic = topic
		}
	}
}

func WithSink(s Sink) Option {
	return func(p *Pipeline) {
		p.sink = s
	}
}

func WithCache(c Cache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

func WithDirectory(d UserDirectory) Option {
	return func(p *Pipeline) {
		p.directory = d
	}
}

func WithMailer(m email.EmailSender) Option {
	return func(p *Pipeline) {
		p.mailer = m
	}
}

func WithAlerter(a Alerter) Option {
	return func(p *Pipeline) {
		p.alerter = a
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
