package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/integration/database/pg"
)

const taskColumns = `id, queue, task_name, payload, status, priority, retry_count, max_attempts,
	backoff_base_ms, dead_letter_topic, trace_id, owner_id, scheduled_at, locked_until,
	locked_by, processed_at, error, created_at`

const claimedColumns = `t.id, t.queue, t.task_name, t.payload, t.status, t.priority, t.retry_count,
	t.max_attempts, t.backoff_base_ms, t.dead_letter_topic, t.trace_id, t.owner_id, t.scheduled_at,
	t.locked_until, t.locked_by, t.processed_at, t.error, t.created_at`

// Storage implements queue.Storage on PostgreSQL.
type Storage struct {
	pool          *pgxpool.Pool
	retention     time.Duration
	purgeInterval time.Duration
	logger        *slog.Logger

	purged atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Purged int64
}

var (
	_ queue.Storage = (*Storage)(nil)
	_ queue.Runner  = (*Storage)(nil)
)

// Option configures a Storage.
type Option func(*Storage)

// WithRetention sets how long completed tasks are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(s *Storage) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithPurgeInterval sets how often completed tasks past retention are deleted.
func WithPurgeInterval(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.purgeInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a storage over pool. Apply Migrations first.
func New(pool *pgxpool.Pool, opts ...Option) (*Storage, error) {
	if pool == nil {
		return nil, ErrPoolNil
	}

	s := &Storage{
		pool:          pool,
		retention:     7 * 24 * time.Hour,
		purgeInterval: time.Hour,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateTask inserts a task. It joins a transaction stored with pg.WithTx.
func (s *Storage) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return ErrTaskNil
	}

	_, err := pg.ExecutorFrom(ctx, s.pool).Exec(ctx, `
		INSERT INTO queue_tasks (id, queue, task_name, payload, status, priority, retry_count,
			max_attempts, backoff_base_ms, dead_letter_topic, trace_id, owner_id, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.Queue, task.TaskName, nullJSON(task.Payload), string(task.Status), int16(task.Priority),
		task.RetryCount, task.MaxAttempts, task.BackoffBase.Milliseconds(), task.DeadLetterTopic,
		task.TraceID, task.OwnerID, task.ScheduledAt.UTC(), task.CreatedAt.UTC(),
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", queue.ErrTaskExists, task.ID)
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ClaimTask locks the highest-priority due task of the given queues.
// Processing tasks whose lock has expired are eligible again.
func (s *Storage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1)
				AND scheduled_at <= now()
				AND (status = 'pending' OR (status = 'processing' AND locked_until < now()))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_tasks t
		SET status = 'processing',
			retry_count = CASE WHEN t.status = 'processing' THEN t.retry_count + 1 ELSE t.retry_count END,
			error = CASE WHEN t.status = 'processing' THEN $4::text ELSE t.error END,
			locked_until = now() + ($3::bigint * interval '1 millisecond'),
			locked_by = $2
		FROM next
		WHERE t.id = next.id
		RETURNING `+claimedColumns,
		queues, workerID, lockDuration.Milliseconds(), queue.ErrLockExpired.Error(),
	)

	task, err := scanTask(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return task, nil
}

// CompleteTask marks a processing task completed.
func (s *Storage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notProcessing(ctx, taskID)
	}
	return nil
}

// FailTask records a failed attempt and reschedules the task at nextRunAt.
func (s *Storage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string, nextRunAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET status = 'pending', retry_count = retry_count + 1, error = $2,
			scheduled_at = $3, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID, errorMsg, nextRunAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notProcessing(ctx, taskID)
	}
	return nil
}

// MoveToDLQ removes the task and stores its final failure in one statement.
func (s *Storage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM queue_tasks WHERE id = $1
			RETURNING id, queue, task_name, payload, priority, retry_count, dead_letter_topic, trace_id, owner_id
		)
		INSERT INTO queue_tasks_dlq (id, task_id, queue, task_name, payload, priority, error,
			retry_count, dead_letter_topic, trace_id, owner_id, failed_at)
		SELECT $2, id, queue, task_name, payload, priority, $3,
			retry_count, dead_letter_topic, trace_id, owner_id, now()
		FROM moved`, taskID, uuid.New(), errorMsg)
	if err != nil {
		return fmt.Errorf("failed to move task to dead letters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return nil
}

// ExtendLock pushes the lock of a processing task forward.
func (s *Storage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks
		SET locked_until = now() + ($2::bigint * interval '1 millisecond')
		WHERE id = $1 AND status = 'processing'`, taskID, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.notProcessing(ctx, taskID)
	}
	return nil
}

// GetTask returns a live task.
func (s *Storage) GetTask(ctx context.Context, taskID uuid.UUID) (*queue.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM queue_tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

// DeadLetters returns the most recent dead-letter entries.
func (s *Storage) DeadLetters(ctx context.Context, limit int) ([]queue.TasksDlq, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, queue, task_name, payload, priority, error, retry_count,
			dead_letter_topic, trace_id, owner_id, failed_at, created_at
		FROM queue_tasks_dlq
		ORDER BY failed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.TasksDlq, error) {
		var d queue.TasksDlq
		var priority int16
		err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskName, &d.Payload, &priority, &d.Error,
			&d.RetryCount, &d.DeadLetterTopic, &d.TraceID, &d.OwnerID, &d.FailedAt, &d.CreatedAt)
		d.Priority = queue.Priority(priority)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dead letters: %w", err)
	}
	return out, nil
}

// PendingCount returns the number of pending tasks in a queue.
func (s *Storage) PendingCount(ctx context.Context, queueName string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM queue_tasks WHERE queue = $1 AND status = 'pending'`, queueName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending tasks: %w", err)
	}
	return n, nil
}

// PurgeCompleted deletes completed tasks processed before cutoff.
func (s *Storage) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM queue_tasks WHERE status = 'completed' AND processed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed tasks: %w", err)
	}
	n := tag.RowsAffected()
	s.purged.Add(n)
	return n, nil
}

// Run returns the retention loop for errgroup. It is a no-op wait when
// retention is disabled.
func (s *Storage) Run(ctx context.Context) func() error {
	return func() error {
		if s.retention == 0 {
			<-ctx.Done()
			return nil
		}

		ticker := time.NewTicker(s.purgeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := s.PurgeCompleted(ctx, time.Now().Add(-s.retention))
				if err != nil {
					if ctx.Err() == nil {
						s.logger.ErrorContext(ctx, "failed to purge completed tasks", logger.Error(err))
					}
					continue
				}
				if n > 0 {
					s.logger.InfoContext(ctx, "purged completed tasks", logger.Count("purged", int(n)))
				}
			}
		}
	}
}

// Healthcheck pings the database.
func (s *Storage) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}

// Stats returns current counters.
func (s *Storage) Stats() Stats {
	return Stats{Purged: s.purged.Load()}
}

func (s *Storage) notProcessing(ctx context.Context, taskID uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM queue_tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check task: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return fmt.Errorf("%w: %s", queue.ErrTaskNotProcessing, taskID)
}

func scanTask(row pgx.Row) (*queue.Task, error) {
	var (
		t         queue.Task
		status    string
		priority  int16
		backoffMS int64
	)
	err := row.Scan(&t.ID, &t.Queue, &t.TaskName, &t.Payload, &status, &priority, &t.RetryCount,
		&t.MaxAttempts, &backoffMS, &t.DeadLetterTopic, &t.TraceID, &t.OwnerID, &t.ScheduledAt,
		&t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = queue.TaskStatus(status)
	t.Priority = queue.Priority(priority)
	t.BackoffBase = time.Duration(backoffMS) * time.Millisecond
	return &t, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
