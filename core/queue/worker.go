package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/escalation"
	"github.com/clinicflow/clinicflow/core/logger"
)

// WorkerRepository is the storage contract of the Worker.
type WorkerRepository interface {
	// ClaimTask atomically claims the next due task.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks a task as completed.
	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records a failed attempt and reschedules the task at nextRunAt.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, nextRunAt time.Time) error

	// MoveToDLQ records the final failure and removes the task from the live set.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// ExtendLock extends the lock of a long-running task.
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Alerter raises administrator alerts. Implementations must not fail.
type Alerter interface {
	Alert(ctx context.Context, a escalation.Alert)
}

// Worker claims due tasks and runs their handlers.
type Worker struct {
	repo      WorkerRepository
	handlers  map[string]Handler
	queues    []string
	workerID  uuid.UUID
	sem       chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	publisher broker.Publisher
	alerter   Alerter
	now       func() time.Time

	pullInterval    time.Duration
	lockTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool

	tasksProcessed    atomic.Int64
	tasksFailed       atomic.Int64
	tasksDeadLettered atomic.Int64
	publishFailures   atomic.Int64
	activeTasks       atomic.Int32
}

// WorkerStats provides observability counters.
type WorkerStats struct {
	TasksProcessed    int64 // completed tasks
	TasksFailed       int64 // failed attempts, exhausted ones included
	TasksDeadLettered int64 // tasks moved to the dead-letter queue
	PublishFailures   int64 // dead letters that could not be published
	ActiveTasks       int32
	IsRunning         bool
}

// NewWorker creates a worker.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		shutdownTimeout:    30 * time.Second,
		maxConcurrentTasks: 1,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:            repo,
		handlers:        make(map[string]Handler),
		queues:          options.queues,
		workerID:        uuid.New(),
		sem:             make(chan struct{}, options.maxConcurrentTasks),
		publisher:       options.publisher,
		alerter:         options.alerter,
		now:             options.now,
		pullInterval:    options.pullInterval,
		lockTimeout:     options.lockTimeout,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
	}, nil
}

// NewWorkerFromConfig creates a worker from configuration.
func NewWorkerFromConfig(cfg Config, repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	return NewWorker(repo, append([]WorkerOption{
		WithPullInterval(cfg.PollInterval),
		WithLockTimeout(cfg.LockTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		WithQueues(cfg.Queues...),
	}, opts...)...)
}

// RegisterHandler registers a task handler. A later registration for the same
// name replaces the earlier one.
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// Start processes tasks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	w.logger.InfoContext(w.ctx, "worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.InfoContext(context.Background(), "worker stopping")
			return w.ctx.Err()
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// Checking cancel and adding to wg under one lock keeps Stop from
				// waiting on an incomplete count.
				w.mu.RLock()
				if w.cancel == nil {
					w.mu.RUnlock()
					<-w.sem
					return nil
				}
				w.wg.Add(1)
				w.mu.RUnlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(w.ctx); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.ErrorContext(w.ctx, "failed to process task",
							slog.String("worker_id", w.workerID.String()),
							logger.Error(err))
					}
				}()
			default:
				w.logger.DebugContext(w.ctx, "all worker slots busy, skipping tick",
					slog.String("worker_id", w.workerID.String()))
			}
		}
	}
}

// Stop cancels the worker and waits for running tasks up to the shutdown timeout.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	w.stopping.Store(true)
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(context.Background(), "worker stopped cleanly",
			slog.String("worker_id", w.workerID.String()))
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(context.Background(), "worker shutdown timeout exceeded, some tasks may be abandoned",
			slog.String("worker_id", w.workerID.String()),
			slog.Duration("timeout", w.shutdownTimeout))
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, w.shutdownTimeout)
	}
}

// Run returns an errgroup-compatible function.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// ProcessNext claims and runs at most one due task synchronously. It returns
// ErrNoTaskToClaim when nothing is due.
func (w *Worker) ProcessNext(ctx context.Context) error {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrNoTaskToClaim
	}
	return w.processTask(ctx, task)
}

func (w *Worker) pullAndProcess(ctx context.Context) error {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil
	}

	w.logger.DebugContext(ctx, "claimed task",
		logger.JobID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue))

	return w.processTask(ctx, task)
}

func (w *Worker) processTask(ctx context.Context, task *Task) (retErr error) {
	start := time.Now()
	// A claimed task is always finished and recorded, even during shutdown.
	ctx = context.WithoutCancel(ctx)

	w.activeTasks.Add(1)
	defer w.activeTasks.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "handler panicked",
				logger.JobID(task.ID.String()),
				slog.String("task_name", task.TaskName),
				logger.Panic(r))
			retErr = w.handleTaskFailure(ctx, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	// Expired locks count as attempts, so a task that keeps crashing its
	// worker lands here instead of being run again.
	if task.RetryCount >= task.MaxAttempts {
		w.tasksFailed.Add(1)
		w.logger.ErrorContext(ctx, "task exhausted its attempts without finishing",
			logger.JobID(task.ID.String()),
			slog.String("task_name", task.TaskName),
			logger.Attempts(task.RetryCount))
		return w.deadLetter(ctx, task, ErrLockExpired.Error(), task.RetryCount)
	}

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(ctx, task)
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	taskCtx = logger.WithTraceID(taskCtx, task.TraceID)
	taskCtx = WithTaskInfo(taskCtx, TaskInfo{
		ID:          task.ID.String(),
		Queue:       task.Queue,
		TaskName:    task.TaskName,
		Attempt:     task.RetryCount + 1,
		MaxAttempts: task.MaxAttempts,
		TraceID:     task.TraceID,
		OwnerID:     task.OwnerID,
	})

	if err := handler.Handle(taskCtx, task.Payload); err != nil {
		return w.handleTaskFailure(ctx, task, err, time.Since(start))
	}

	return w.handleTaskSuccess(ctx, task, time.Since(start))
}

// handleMissingHandler dead-letters the task straight away: retrying cannot
// help until a handler is deployed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.tasksFailed.Add(1)

	w.logger.ErrorContext(ctx, "no handler registered for task type",
		logger.JobID(task.ID.String()),
		slog.String("task_name", task.TaskName))

	if err := w.deadLetter(ctx, task, ErrHandlerNotFound.Error()+": "+task.TaskName, task.RetryCount); err != nil {
		return err
	}
	return ErrHandlerNotFound
}

func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, execErr error, duration time.Duration) error {
	w.tasksFailed.Add(1)

	attempt := task.RetryCount + 1

	w.logger.ErrorContext(ctx, "task failed",
		logger.JobID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		logger.Attempts(attempt),
		slog.Int("max_attempts", task.MaxAttempts),
		logger.Duration(duration),
		logger.Error(execErr))

	if attempt >= task.MaxAttempts || IsPermanent(execErr) {
		return w.deadLetter(ctx, task, execErr.Error(), attempt)
	}

	delay := task.Backoff().Delay(attempt)
	if err := w.repo.FailTask(ctx, task.ID, execErr.Error(), w.now().Add(delay)); err != nil {
		return fmt.Errorf("failed to reschedule task %s: %w", task.ID, err)
	}

	w.logger.InfoContext(ctx, "task rescheduled",
		logger.JobID(task.ID.String()),
		logger.Attempts(attempt),
		logger.Delay(delay))

	return nil
}

// deadLetter moves the task to the storage DLQ and publishes a DeadJob. A
// failed publish raises a critical alert and is not retried.
func (w *Worker) deadLetter(ctx context.Context, task *Task, reason string, attempts int) error {
	if err := w.repo.MoveToDLQ(ctx, task.ID, reason); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}
	w.tasksDeadLettered.Add(1)

	w.logger.WarnContext(ctx, "task moved to dead letter queue",
		logger.JobID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		logger.Attempts(attempts))

	if task.DeadLetterTopic == "" {
		return nil
	}

	dead := NewDeadJob(task, reason, attempts, w.now())

	var pubErr error
	if w.publisher == nil {
		pubErr = errors.New("no dead-letter publisher configured")
	} else {
		pubErr = broker.PublishJSON(ctx, w.publisher, task.DeadLetterTopic, task.OwnerID, dead)
	}
	if pubErr == nil {
		return nil
	}

	w.publishFailures.Add(1)
	w.logger.ErrorContext(ctx, "failed to publish dead job",
		logger.JobID(dead.JobID),
		logger.Topic(task.DeadLetterTopic),
		logger.Error(pubErr))

	if w.alerter != nil {
		w.alerter.Alert(ctx, escalation.Alert{
			Severity: escalation.SeverityCritical,
			Subject:  fmt.Sprintf("dead-letter publish failed for %s job", task.TaskName),
			Reason:   fmt.Sprintf("%s (job failure: %s)", pubErr, reason),
			TraceID:  task.TraceID,
			UserID:   task.OwnerID,
			JobID:    dead.JobID,
			Source:   task.Queue,
			Details:  map[string]string{"dead_letter_topic": task.DeadLetterTopic},
		})
	}
	return nil
}

func (w *Worker) handleTaskSuccess(ctx context.Context, task *Task, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.tasksProcessed.Add(1)

	w.logger.InfoContext(ctx, "task completed",
		logger.JobID(task.ID.String()),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue),
		logger.Duration(duration))

	return nil
}

// ExtendLockForTask extends the lock of a long-running task.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// WorkerInfo returns identifying information about the worker instance.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}

// HandlerCount returns the number of registered handlers.
func (w *Worker) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}

// Queues returns a copy of the queues this worker processes.
func (w *Worker) Queues() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.queues...)
}

// Stats returns current counters.
func (w *Worker) Stats() WorkerStats {
	w.mu.RLock()
	isRunning := w.cancel != nil
	w.mu.RUnlock()

	return WorkerStats{
		TasksProcessed:    w.tasksProcessed.Load(),
		TasksFailed:       w.tasksFailed.Load(),
		TasksDeadLettered: w.tasksDeadLettered.Load(),
		PublishFailures:   w.publishFailures.Load(),
		ActiveTasks:       w.activeTasks.Load(),
		IsRunning:         isRunning,
	}
}

// Healthcheck reports whether the worker is running and has a free slot.
//
//	if errors.Is(err, queue.ErrWorkerOverloaded) { ... }
func (w *Worker) Healthcheck(ctx context.Context) error {
	stats := w.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerNotRunning)
	}

	maxConcurrent := int32(cap(w.sem))
	if stats.ActiveTasks >= maxConcurrent {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerOverloaded,
			fmt.Errorf("%d/%d slots busy", stats.ActiveTasks, maxConcurrent))
	}

	return nil
}
