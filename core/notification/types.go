package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/queue"
)

const (
	QueueName       = "notification-scheduled"
	TaskDeliver     = "notification.deliver"
	DeadLetterTopic = "notification-dlq"

	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
	DefaultRecentLimit = 50

	// EventNew is the real-time event pushed on delivery.
	EventNew = "notification.new"
)

// Task is the queued delivery job payload.
type Task struct {
	UserID   string         `json:"userId"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
	TraceID  string         `json:"traceId,omitempty"`
	Delay    time.Duration  `json:"delay,omitempty"`
}

// Notification is a persisted, user visible notification.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"userId"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

// User is the part of a user record the pipeline needs.
type User struct {
	ID    string
	Name  string
	Email string
}

// Store persists notifications. Create must be idempotent on ID.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Notification, error)
}

// Cache holds each user's recent notification list.
type Cache interface {
	Get(ctx context.Context, userID string) ([]Notification, bool, error)
	Set(ctx context.Context, userID string, list []Notification) error
	Invalidate(ctx context.Context, userID string) error
}

// UserDirectory resolves users for email fallbacks.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (User, error)
}

// Sink pushes events to connected users.
type Sink interface {
	Send(ctx context.Context, userID, event string, payload any) error
}

// Enqueuer schedules delivery tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Alerter raises administrator alerts.
type Alerter interface {
	Alert(ctx context.Context, a escalation.Alert)
}
