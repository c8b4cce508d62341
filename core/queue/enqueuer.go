package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer schedules tasks with configurable defaults.
type Enqueuer struct {
	repo               EnqueuerRepository
	defaultQueue       string
	defaultPriority    Priority
	defaultMaxAttempts int
	defaultBackoff     Backoff
	now                func() time.Time
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:       DefaultQueueName,
		defaultPriority:    PriorityDefault,
		defaultMaxAttempts: DefaultMaxAttempts,
		defaultBackoff:     Exponential(DefaultBackoffBase),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:               repo,
		defaultQueue:       options.defaultQueue,
		defaultPriority:    options.defaultPriority,
		defaultMaxAttempts: options.defaultMaxAttempts,
		defaultBackoff:     options.defaultBackoff,
		now:                options.now,
	}, nil
}

// NewEnqueuerFromConfig creates an Enqueuer from configuration.
func NewEnqueuerFromConfig(cfg Config, repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	configOpts := []EnqueuerOption{
		WithDefaultQueue(cfg.DefaultQueue),
		WithDefaultMaxAttempts(cfg.DefaultMaxAttempts),
		WithDefaultBackoff(Exponential(cfg.DefaultBackoffBase)),
	}
	if cfg.DefaultPriority.Valid() {
		configOpts = append(configOpts, WithDefaultPriority(cfg.DefaultPriority))
	}
	return NewEnqueuer(repo, append(configOpts, opts...)...)
}

// Enqueue schedules payload and returns the new task id.
// A target time in the past is clamped to now, so the task fires immediately.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: e.defaultMaxAttempts,
		backoff:     e.defaultBackoff,
	}
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}
	if options.maxAttempts < 1 {
		return uuid.Nil, ErrInvalidMaxAttempts
	}

	task, err := e.buildTask(payload, options)
	if err != nil {
		return uuid.Nil, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}

	return task.ID, nil
}

func (e *Enqueuer) buildTask(payload any, options *enqueueOptions) (*Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	taskName := options.taskName
	if taskName == "" {
		taskName = qualifiedStructName(payload)
	}

	now := e.now()
	scheduledAt := now
	switch {
	case options.scheduledAt != nil:
		if options.scheduledAt.After(now) {
			scheduledAt = *options.scheduledAt
		}
	case options.delay > 0:
		scheduledAt = now.Add(options.delay)
	}

	return &Task{
		ID:              uuid.New(),
		Queue:           options.queue,
		TaskName:        taskName,
		Payload:         payloadBytes,
		Status:          TaskStatusPending,
		Priority:        options.priority,
		MaxAttempts:     options.maxAttempts,
		BackoffBase:     options.backoff.Base,
		DeadLetterTopic: options.deadLetterTopic,
		TraceID:         options.traceID,
		OwnerID:         options.ownerID,
		ScheduledAt:     scheduledAt,
		CreatedAt:       now,
	}, nil
}
