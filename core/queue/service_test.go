package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/queue"
)

func TestService(t *testing.T) {
	t.Parallel()

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()
		_, err := queue.NewService(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})

	t.Run("runs worker and storage", func(t *testing.T) {
		t.Parallel()

		var handled atomic.Int32
		var stopped atomic.Bool

		cfg := queue.DefaultConfig()
		cfg.PollInterval = 5 * time.Millisecond
		cfg.Queues = []string{testQueue}
		cfg.DefaultQueue = testQueue

		storage := queue.NewMemoryStorage(queue.WithLockCheckInterval(5 * time.Millisecond))
		svc, err := queue.NewServiceFromConfig(cfg, storage, nil,
			queue.WithHandlers(queue.NewNamedTaskHandler(testTask, func(context.Context, reminderPayload) error {
				handled.Add(1)
				return nil
			})),
			queue.WithAfterStop(func() error {
				stopped.Store(true)
				return nil
			}),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		_, err = svc.EnqueueWithDelay(ctx, reminderPayload{}, 0, queue.WithTaskName(testTask))
		require.NoError(t, err)
		_, err = svc.EnqueueAt(ctx, reminderPayload{}, time.Now().Add(-time.Minute), queue.WithTaskName(testTask))
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return handled.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
		assert.Eventually(t, func() bool { return svc.Healthcheck(ctx) == nil }, time.Second, 5*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
		assert.True(t, stopped.Load())
	})

	t.Run("before start hook failure", func(t *testing.T) {
		t.Parallel()

		svc, err := queue.NewService(queue.NewMemoryStorage(),
			queue.WithBeforeStart(func(context.Context) error { return errors.New("migrations failed") }),
		)
		require.NoError(t, err)
		err = svc.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrations failed")
	})
}

func TestNewDeadJobHandler(t *testing.T) {
	t.Parallel()

	_, err := queue.DecodeDeadJob([]byte(`{}`))
	assert.Error(t, err)

	var got queue.DeadJob
	h := queue.NewDeadJobHandler(func(_ context.Context, job queue.DeadJob) error {
		got = job
		return nil
	})

	err = h(context.Background(), brokerMessage(`{"jobId":"j-1","queue":"q","taskName":"t","error":"x","attempts":3}`))
	require.NoError(t, err)
	assert.Equal(t, "j-1", got.JobID)
	assert.Equal(t, 3, got.Attempts)
}
