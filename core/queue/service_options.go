package queue

import (
	"context"
	"log/slog"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithServiceLogger sets the service logger. Components keep their own loggers.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithWorkerOptions replaces the worker with one built from opts.
func WithWorkerOptions(opts ...WorkerOption) ServiceOption {
	return func(s *Service) error {
		worker, err := NewWorker(s.storage, opts...)
		if err != nil {
			return err
		}
		s.worker = worker
		return nil
	}
}

// WithEnqueuerOptions replaces the enqueuer with one built from opts.
func WithEnqueuerOptions(opts ...EnqueuerOption) ServiceOption {
	return func(s *Service) error {
		enqueuer, err := NewEnqueuer(s.storage, opts...)
		if err != nil {
			return err
		}
		s.enqueuer = enqueuer
		return nil
	}
}

// WithSkipWorkerIfNoHandlers controls whether Run skips an idle worker. Default true.
func WithSkipWorkerIfNoHandlers(skip bool) ServiceOption {
	return func(s *Service) error {
		s.skipWorkerIfNoHandlers = skip
		return nil
	}
}

// WithBeforeStart sets a hook run before the service starts.
func WithBeforeStart(hook func(context.Context) error) ServiceOption {
	return func(s *Service) error {
		s.beforeStart = hook
		return nil
	}
}

// WithAfterStop sets a hook run after the service stops.
func WithAfterStop(hook func() error) ServiceOption {
	return func(s *Service) error {
		s.afterStop = hook
		return nil
	}
}

// WithHandlers registers task handlers at construction.
func WithHandlers(handlers ...Handler) ServiceOption {
	return func(s *Service) error {
		return s.worker.RegisterHandlers(handlers...)
	}
}
