package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/pkg/async"
)

func TestExec(t *testing.T) {
	t.Parallel()

	t.Run("returns nil on success", func(t *testing.T) {
		t.Parallel()

		f := async.Exec(context.Background(), 42, func(_ context.Context, n int) error {
			if n != 42 {
				return errors.New("unexpected number")
			}
			return nil
		})

		assert.NoError(t, f.Await())
	})

	t.Run("propagates error", func(t *testing.T) {
		t.Parallel()

		want := errors.New("boom")
		f := async.Exec(context.Background(), "x", func(context.Context, string) error {
			return want
		})

		assert.ErrorIs(t, f.Await(), want)
	})

	t.Run("canceled context skips function", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var called atomic.Bool
		f := async.Exec(ctx, 1, func(context.Context, int) error {
			called.Store(true)
			return nil
		})

		assert.ErrorIs(t, f.Await(), context.Canceled)
		assert.False(t, called.Load())
	})

	t.Run("recovers panic", func(t *testing.T) {
		t.Parallel()

		f := async.Exec(context.Background(), 1, func(context.Context, int) error {
			panic("handler exploded")
		})

		err := f.Await()
		require.ErrorIs(t, err, async.ErrPanic)
		assert.Contains(t, err.Error(), "handler exploded")
	})
}

func TestJoinAll(t *testing.T) {
	t.Parallel()

	t.Run("nil when all succeed", func(t *testing.T) {
		t.Parallel()

		ok := func(context.Context, string) error { return nil }
		assert.NoError(t, async.JoinAll(
			async.Exec(context.Background(), "patient", ok),
			async.Exec(context.Background(), "doctor", ok),
		))
	})

	t.Run("nil with no futures", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, async.JoinAll())
	})

	t.Run("attempts every branch and joins every error", func(t *testing.T) {
		t.Parallel()

		errPatient := errors.New("patient push failed")
		errDoctor := errors.New("doctor push failed")
		var attempted atomic.Int32

		fail := func(err error) func(context.Context, int) error {
			return func(context.Context, int) error {
				attempted.Add(1)
				return err
			}
		}

		err := async.JoinAll(
			async.Exec(context.Background(), 0, fail(errPatient)),
			async.Exec(context.Background(), 0, fail(nil)),
			async.Exec(context.Background(), 0, fail(errDoctor)),
		)

		require.Error(t, err)
		assert.ErrorIs(t, err, errPatient)
		assert.ErrorIs(t, err, errDoctor)
		assert.Equal(t, int32(3), attempted.Load())
	})

	t.Run("panic in one branch does not hide the others", func(t *testing.T) {
		t.Parallel()

		errOther := errors.New("other")
		err := async.JoinAll(
			async.Exec(context.Background(), 0, func(context.Context, int) error { panic("x") }),
			async.Exec(context.Background(), 0, func(context.Context, int) error { return errOther }),
		)

		assert.ErrorIs(t, err, async.ErrPanic)
		assert.ErrorIs(t, err, errOther)
	})
}

func TestExec_DetachedContextRunsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Bool
	f := async.Exec(context.WithoutCancel(ctx), 1, func(context.Context, int) error {
		called.Store(true)
		return nil
	})

	assert.NoError(t, f.Await())
	assert.True(t, called.Load())
}
