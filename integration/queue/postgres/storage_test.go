package postgres_test

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/integration/database/pg"
	"github.com/clinicflow/clinicflow/integration/queue/postgres"
)

func TestNew_NilPool(t *testing.T) {
	t.Parallel()

	_, err := postgres.New(nil)
	assert.ErrorIs(t, err, postgres.ErrPoolNil)
}

func TestMigrations_Embedded(t *testing.T) {
	t.Parallel()

	m := postgres.Migrations()
	assert.Equal(t, postgres.MigrationsTable, m.Table)

	names, err := fs.Glob(m.FS, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, names, "00001_queue_tasks.sql")
}

func newLiveStorage(t *testing.T) *postgres.Storage {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	pool, err := pg.Connect(ctx, pg.Config{ConnectionString: url, RetryAttempts: 3})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, nil, postgres.Migrations()))

	s, err := postgres.New(pool)
	require.NoError(t, err)
	require.NoError(t, s.Healthcheck(ctx))
	return s
}

func newTask(queueName string, priority queue.Priority) *queue.Task {
	now := time.Now().UTC()
	return &queue.Task{
		ID:              uuid.New(),
		Queue:           queueName,
		TaskName:        "appointment.status",
		Payload:         []byte(`{"appointmentId":"a-1","status":"RUNNING"}`),
		Status:          queue.TaskStatusPending,
		Priority:        priority,
		MaxAttempts:     5,
		BackoffBase:     30 * time.Second,
		DeadLetterTopic: "appointment-scheduled-dlq",
		TraceID:         uuid.NewString(),
		OwnerID:         "patient-1",
		ScheduledAt:     now.Add(-time.Second),
		CreatedAt:       now,
	}
}

func TestStorage_Lifecycle_Live(t *testing.T) {
	s := newLiveStorage(t)
	ctx := context.Background()
	queueName := "test-" + uuid.NewString()
	worker := uuid.New()

	low := newTask(queueName, queue.PriorityLow)
	high := newTask(queueName, queue.PriorityHigh)
	require.NoError(t, s.CreateTask(ctx, low))
	require.NoError(t, s.CreateTask(ctx, high))
	assert.ErrorIs(t, s.CreateTask(ctx, high), queue.ErrTaskExists)

	n, err := s.PendingCount(ctx, queueName)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	claimed, err := s.ClaimTask(ctx, worker, []string{queueName}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, queue.TaskStatusProcessing, claimed.Status)
	assert.Equal(t, 30*time.Second, claimed.BackoffBase)
	require.NotNil(t, claimed.LockedBy)
	assert.Equal(t, worker, *claimed.LockedBy)
	assert.JSONEq(t, string(high.Payload), string(claimed.Payload))

	require.NoError(t, s.FailTask(ctx, high.ID, "broker unavailable", time.Now().Add(-time.Second)))
	failed, err := s.GetTask(ctx, high.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, queue.TaskStatusPending, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "broker unavailable", *failed.Error)

	assert.ErrorIs(t, s.CompleteTask(ctx, low.ID), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, s.CompleteTask(ctx, uuid.New()), queue.ErrTaskNotFound)

	again, err := s.ClaimTask(ctx, worker, []string{queueName}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, high.ID, again.ID)
	require.NoError(t, s.ExtendLock(ctx, high.ID, 2*time.Minute))
	require.NoError(t, s.MoveToDLQ(ctx, high.ID, "exhausted"))
	_, err = s.GetTask(ctx, high.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)

	dead, err := s.DeadLetters(ctx, 50)
	require.NoError(t, err)
	var found bool
	for _, d := range dead {
		if d.TaskID == high.ID {
			found = true
			assert.Equal(t, "exhausted", d.Error)
			assert.Equal(t, 1, d.RetryCount)
			assert.Equal(t, "patient-1", d.OwnerID)
		}
	}
	assert.True(t, found)

	next, err := s.ClaimTask(ctx, worker, []string{queueName}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, low.ID, next.ID)
	require.NoError(t, s.CompleteTask(ctx, low.ID))

	_, err = s.ClaimTask(ctx, worker, []string{queueName}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	purged, err := s.PurgeCompleted(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))
}

func TestStorage_ExpiredLockIsReclaimed_Live(t *testing.T) {
	s := newLiveStorage(t)
	ctx := context.Background()
	queueName := "test-" + uuid.NewString()

	task := newTask(queueName, queue.PriorityDefault)
	require.NoError(t, s.CreateTask(ctx, task))

	_, err := s.ClaimTask(ctx, uuid.New(), []string{queueName}, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	rescuer := uuid.New()
	reclaimed, err := s.ClaimTask(ctx, rescuer, []string{queueName}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, task.ID, reclaimed.ID)
	assert.Equal(t, rescuer, *reclaimed.LockedBy)
	assert.Equal(t, 1, reclaimed.RetryCount, "the abandoned run is a failed attempt")
	require.NotNil(t, reclaimed.Error)
	assert.Equal(t, queue.ErrLockExpired.Error(), *reclaimed.Error)
}

func TestStorage_PoisonTaskStopsBeingReclaimed_Live(t *testing.T) {
	s := newLiveStorage(t)
	ctx := context.Background()
	queueName := "test-" + uuid.NewString()

	task := newTask(queueName, queue.PriorityDefault)
	task.MaxAttempts = 2
	require.NoError(t, s.CreateTask(ctx, task))

	// Each claim's worker dies before finishing.
	for range task.MaxAttempts + 1 {
		_, err := s.ClaimTask(ctx, uuid.New(), []string{queueName}, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	w, err := queue.NewWorker(s, queue.WithQueues(queueName), queue.WithLockTimeout(time.Minute))
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandlers(queue.NewNamedTaskHandler("appointment.status", func(context.Context, json.RawMessage) error {
		t.Fatal("handler must not run for an exhausted task")
		return nil
	})))

	require.NoError(t, w.ProcessNext(ctx))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.Equal(t, int64(1), w.Stats().TasksDeadLettered)
}
