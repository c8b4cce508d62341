package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/queue"
)

func TestEnqueuer(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	newEnqueuer := func(t *testing.T) (*queue.Enqueuer, *queue.MemoryStorage) {
		t.Helper()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage, queue.WithEnqueuerClock(clock))
		require.NoError(t, err)
		return enq, storage
	}

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()
		_, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		enq, storage := newEnqueuer(t)

		id, err := enq.Enqueue(context.Background(), reminderPayload{AppointmentID: "a-1"})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		task, err := storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, queue.DefaultQueueName, task.Queue)
		assert.Equal(t, "queue_test.reminderPayload", task.TaskName)
		assert.Equal(t, queue.DefaultMaxAttempts, task.MaxAttempts)
		assert.Equal(t, queue.DefaultBackoffBase, task.BackoffBase)
		assert.Equal(t, now, task.ScheduledAt)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
		assert.JSONEq(t, `{"appointmentId":"a-1","userId":""}`, string(task.Payload))
	})

	t.Run("all options", func(t *testing.T) {
		t.Parallel()
		enq, storage := newEnqueuer(t)

		at := now.Add(2 * time.Hour)
		id, err := enq.Enqueue(context.Background(), reminderPayload{},
			queue.WithQueue("appointment-scheduled"),
			queue.WithTaskName("appointment.status"),
			queue.WithScheduledAt(at),
			queue.WithMaxAttempts(5),
			queue.WithBackoff(queue.Exponential(3*time.Second)),
			queue.WithDeadLetterTopic("appointment-scheduled-dlq"),
			queue.WithTraceID("trace-1"),
			queue.WithOwner("user-1"),
			queue.WithPriority(queue.PriorityHigh),
		)
		require.NoError(t, err)

		task, err := storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "appointment-scheduled", task.Queue)
		assert.Equal(t, "appointment.status", task.TaskName)
		assert.Equal(t, at, task.ScheduledAt)
		assert.Equal(t, 5, task.MaxAttempts)
		assert.Equal(t, 3*time.Second, task.BackoffBase)
		assert.Equal(t, "appointment-scheduled-dlq", task.DeadLetterTopic)
		assert.Equal(t, "trace-1", task.TraceID)
		assert.Equal(t, "user-1", task.OwnerID)
		assert.Equal(t, queue.PriorityHigh, task.Priority)
	})

	t.Run("past target is clamped to now", func(t *testing.T) {
		t.Parallel()
		enq, storage := newEnqueuer(t)

		id, err := enq.Enqueue(context.Background(), reminderPayload{}, queue.WithScheduledAt(now.Add(-time.Hour)))
		require.NoError(t, err)
		task, err := storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, now, task.ScheduledAt)
	})

	t.Run("delay", func(t *testing.T) {
		t.Parallel()
		enq, storage := newEnqueuer(t)

		id, err := enq.Enqueue(context.Background(), reminderPayload{}, queue.WithDelay(time.Minute))
		require.NoError(t, err)
		task, err := storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Minute), task.ScheduledAt)

		id, err = enq.Enqueue(context.Background(), reminderPayload{}, queue.WithDelay(-time.Minute))
		require.NoError(t, err)
		task, err = storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, now, task.ScheduledAt)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		enq, _ := newEnqueuer(t)

		_, err := enq.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)

		_, err = enq.Enqueue(context.Background(), reminderPayload{}, queue.WithMaxAttempts(0))
		assert.ErrorIs(t, err, queue.ErrInvalidMaxAttempts)

		_, err = enq.Enqueue(context.Background(), reminderPayload{}, queue.WithPriority(101))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)

		_, err = enq.Enqueue(context.Background(), make(chan int))
		assert.Error(t, err)
	})

	t.Run("from config", func(t *testing.T) {
		t.Parallel()
		cfg := queue.DefaultConfig()
		cfg.DefaultQueue = "notification-scheduled"
		cfg.DefaultMaxAttempts = 7

		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuerFromConfig(cfg, storage)
		require.NoError(t, err)

		id, err := enq.Enqueue(context.Background(), reminderPayload{})
		require.NoError(t, err)
		task, err := storage.GetTask(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "notification-scheduled", task.Queue)
		assert.Equal(t, 7, task.MaxAttempts)
	})
}
