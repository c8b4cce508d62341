package appointment

import (
	"log/slog"
	"time"
)

const (
	CommandTopic = "appointment-commands"

	JobQueue              = "appointment-scheduled"
	TaskScheduledStatus   = "appointment.status"
	JobDeadLetterTopic    = "appointment-scheduled-dlq"
	DefaultJobMaxAttempts = 5
	DefaultJobBackoffBase = 30 * time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithCommandTopic sets the topic commands are published to.
func WithCommandTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithJobMaxAttempts sets the total attempts of a scheduled status job.
func WithJobMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.jobMaxAttempts = n
		}
	}
}

// WithJobBackoffBase sets the base of the scheduled job backoff.
func WithJobBackoffBase(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobBackoffBase = d
		}
	}
}

// WithJobQueue sets the queue scheduled status jobs run on.
func WithJobQueue(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.jobQueue = name
		}
	}
}

// WithJobDeadLetterTopic sets the topic exhausted jobs are published to.
func WithJobDeadLetterTopic(topic string) Option {
	return func(s *Service) {
		if topic != "" {
			s.jobDLQ = topic
		}
	}
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) {
		s.alerter = a
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
