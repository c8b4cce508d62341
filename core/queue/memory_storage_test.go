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

func newTask(queueName string) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskName:    testTask,
		Payload:     []byte(`{}`),
		Status:      queue.TaskStatusPending,
		Priority:    queue.PriorityDefault,
		MaxAttempts: 3,
		ScheduledAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
}

func TestMemoryStorageClaimOrder(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	ctx := context.Background()

	low := newTask(testQueue)
	low.Priority = queue.PriorityLow
	high := newTask(testQueue)
	high.Priority = queue.PriorityHigh
	other := newTask("other")
	other.Priority = queue.PriorityMax

	for _, task := range []*queue.Task{low, high, other} {
		require.NoError(t, ms.CreateTask(ctx, task))
	}
	assert.ErrorIs(t, ms.CreateTask(ctx, low), queue.ErrTaskExists)

	workerID := uuid.New()
	claimed, err := ms.ClaimTask(ctx, workerID, []string{testQueue}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, queue.TaskStatusProcessing, claimed.Status)
	assert.Equal(t, workerID, *claimed.LockedBy)

	claimed, err = ms.ClaimTask(ctx, workerID, []string{testQueue}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, low.ID, claimed.ID)

	_, err = ms.ClaimTask(ctx, workerID, []string{testQueue}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestMemoryStorageTransitions(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage()
	ctx := context.Background()
	task := newTask(testQueue)
	require.NoError(t, ms.CreateTask(ctx, task))

	assert.ErrorIs(t, ms.CompleteTask(ctx, task.ID), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, ms.FailTask(ctx, uuid.New(), "x", time.Now()), queue.ErrTaskNotFound)

	_, err := ms.ClaimTask(ctx, uuid.New(), []string{testQueue}, time.Minute)
	require.NoError(t, err)

	next := time.Now().Add(time.Hour)
	require.NoError(t, ms.FailTask(ctx, task.ID, "temporary", next))

	got, err := ms.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, next, got.ScheduledAt)
	assert.Nil(t, got.LockedBy)
	assert.Equal(t, "temporary", *got.Error)

	require.NoError(t, ms.MoveToDLQ(ctx, task.ID, "final"))
	_, err = ms.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.Equal(t, "final", ms.DeadLetters()[task.ID].Error)
	assert.Zero(t, ms.Stats().ActiveTasks)
}

func TestMemoryStorageRecoversExpiredLocks(t *testing.T) {
	t.Parallel()

	ms := queue.NewMemoryStorage(queue.WithLockCheckInterval(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ms.Run(ctx)() }()

	task := newTask(testQueue)
	require.NoError(t, ms.CreateTask(ctx, task))

	// A worker claims the task and crashes before finishing it.
	_, err := ms.ClaimTask(ctx, uuid.New(), []string{testQueue}, 10*time.Millisecond)
	require.NoError(t, err)

	var claimed *queue.Task
	assert.Eventually(t, func() bool {
		claimed, err = ms.ClaimTask(ctx, uuid.New(), []string{testQueue}, time.Minute)
		return err == nil && claimed.ID == task.ID
	}, time.Second, 5*time.Millisecond)
	require.NotNil(t, claimed)
	assert.Equal(t, 1, claimed.RetryCount, "the abandoned run is a failed attempt")
	require.NotNil(t, claimed.Error)
	assert.Equal(t, queue.ErrLockExpired.Error(), *claimed.Error)

	assert.GreaterOrEqual(t, ms.Stats().ExpiredLocksFreed, int64(1))
	require.NoError(t, ms.Healthcheck(ctx))

	cancel()
	assert.NoError(t, <-done)
	assert.ErrorIs(t, ms.Healthcheck(context.Background()), queue.ErrStorageNotRunning)
}
