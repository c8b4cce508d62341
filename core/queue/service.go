package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Runner is implemented by storages with a background loop, such as the
// lock expiration manager of MemoryStorage.
type Runner interface {
	Run(ctx context.Context) func() error
}

// Service ties a Worker and an Enqueuer to one Storage and manages their lifecycle.
//
//	storage := queue.NewMemoryStorage()
//	svc, err := queue.NewService(storage,
//		queue.WithWorkerOptions(
//			queue.WithQueues("appointment-scheduled", "notification-scheduled"),
//			queue.WithDeadLetterPublisher(b),
//			queue.WithAlerter(escalator),
//		),
//	)
//	svc.RegisterHandler(queue.NewNamedTaskHandler("notification.deliver", pipeline.Deliver))
//	g.Go(func() error { return svc.Run(ctx) })
type Service struct {
	worker   *Worker
	enqueuer *Enqueuer
	storage  Storage
	logger   *slog.Logger

	skipWorkerIfNoHandlers bool

	beforeStart func(context.Context) error
	afterStop   func() error
}

// NewService creates a queue service backed by storage.
func NewService(storage Storage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, ErrRepositoryNil
	}

	s := &Service{
		storage:                storage,
		logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		skipWorkerIfNoHandlers: true,
	}

	enqueuer, err := NewEnqueuer(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create enqueuer: %w", err)
	}
	s.enqueuer = enqueuer

	worker, err := NewWorker(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	s.worker = worker

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply service option: %w", err)
		}
	}

	return s, nil
}

// NewServiceFromConfig creates a service from configuration. Extra worker
// options (publisher, alerter, logger) are appended after the config values.
func NewServiceFromConfig(cfg Config, storage Storage, workerOpts []WorkerOption, opts ...ServiceOption) (*Service, error) {
	serviceOpts := append([]ServiceOption{
		WithWorkerOptions(append([]WorkerOption{
			WithPullInterval(cfg.PollInterval),
			WithLockTimeout(cfg.LockTimeout),
			WithShutdownTimeout(cfg.ShutdownTimeout),
			WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
			WithQueues(cfg.Queues...),
		}, workerOpts...)...),
		WithEnqueuerOptions(
			WithDefaultQueue(cfg.DefaultQueue),
			WithDefaultPriority(cfg.DefaultPriority),
			WithDefaultMaxAttempts(cfg.DefaultMaxAttempts),
			WithDefaultBackoff(Exponential(cfg.DefaultBackoffBase)),
		),
	}, opts...)

	return NewService(storage, serviceOpts...)
}

// Run starts the worker and, when the storage has one, its background loop.
// It blocks until ctx is cancelled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if s.beforeStart != nil {
		if err := s.beforeStart(ctx); err != nil {
			return fmt.Errorf("before start hook failed: %w", err)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)

	if r, ok := s.storage.(Runner); ok {
		eg.Go(r.Run(ctx))
	}

	eg.Go(func() error {
		if s.skipWorkerIfNoHandlers && s.worker.HandlerCount() == 0 {
			s.logger.InfoContext(ctx, "no task handlers registered, worker will not start")
			return nil
		}

		s.logger.InfoContext(ctx, "starting queue worker", slog.Any("queues", s.worker.Queues()))
		return s.worker.Run(ctx)()
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if s.afterStop != nil {
		if stopErr := s.afterStop(); stopErr != nil {
			if err == nil {
				err = fmt.Errorf("after stop hook failed: %w", stopErr)
			} else {
				s.logger.ErrorContext(context.Background(), "after stop hook failed", slog.String("error", stopErr.Error()))
			}
		}
	}

	return err
}

// Worker returns the worker.
func (s *Service) Worker() *Worker {
	return s.worker
}

// Enqueuer returns the enqueuer.
func (s *Service) Enqueuer() *Enqueuer {
	return s.enqueuer
}

// Storage returns the underlying storage.
func (s *Service) Storage() Storage {
	return s.storage
}

// RegisterHandler registers a task handler with the worker.
func (s *Service) RegisterHandler(handler Handler) error {
	return s.worker.RegisterHandler(handler)
}

// RegisterHandlers registers task handlers with the worker.
func (s *Service) RegisterHandlers(handlers ...Handler) error {
	return s.worker.RegisterHandlers(handlers...)
}

// Enqueue schedules a task.
func (s *Service) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	return s.enqueuer.Enqueue(ctx, payload, opts...)
}

// EnqueueWithDelay schedules a task to run after delay.
func (s *Service) EnqueueWithDelay(ctx context.Context, payload any, delay time.Duration, opts ...EnqueueOption) (uuid.UUID, error) {
	return s.enqueuer.Enqueue(ctx, payload, append([]EnqueueOption{WithDelay(delay)}, opts...)...)
}

// EnqueueAt schedules a task to run at a specific time.
func (s *Service) EnqueueAt(ctx context.Context, payload any, at time.Time, opts ...EnqueueOption) (uuid.UUID, error) {
	return s.enqueuer.Enqueue(ctx, payload, append([]EnqueueOption{WithScheduledAt(at)}, opts...)...)
}

// Healthcheck checks the worker and, when supported, the storage.
func (s *Service) Healthcheck(ctx context.Context) error {
	var errs []error
	if s.worker.HandlerCount() > 0 {
		if err := s.worker.Healthcheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if hc, ok := s.storage.(interface{ Healthcheck(context.Context) error }); ok {
		if err := hc.Healthcheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
