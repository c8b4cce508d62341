package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/broker"
)

func TestMemoryBrokerPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := broker.NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, "t", func(_ context.Context, msg broker.Message) error {
			mu.Lock()
			got = append(got, string(msg.Data))
			mu.Unlock()
			return nil
		})
	}()

	require.NoError(t, b.Publish(ctx, "t", []byte("one")))
	require.NoError(t, b.Publish(ctx, "t", []byte("two")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	assert.Equal(t, []string{"one", "two"}, got)
	mu.Unlock()
	assert.Equal(t, broker.MemoryBrokerStats{Published: 2, Delivered: 2}, b.Stats())
}

func TestMemoryBrokerHandlerFailuresDoNotStopConsumer(t *testing.T) {
	t.Parallel()

	b := broker.NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = b.Subscribe(ctx, "t", func(_ context.Context, msg broker.Message) error {
			switch string(msg.Data) {
			case "panic":
				panic("boom")
			case "error":
				return errors.New("failed")
			}
			return nil
		})
	}()

	for _, m := range []string{"panic", "error", "ok"} {
		require.NoError(t, b.Publish(ctx, "t", []byte(m)))
	}

	assert.Eventually(t, func() bool {
		s := b.Stats()
		return s.Failed == 2 && s.Delivered == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBrokerBufferFull(t *testing.T) {
	t.Parallel()

	b := broker.NewMemoryBroker(broker.WithBufferSize(1))
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "t", []byte("a")))
	err := b.Publish(ctx, "t", []byte("b"))
	assert.ErrorIs(t, err, broker.ErrBufferFull)
	assert.Equal(t, 1, b.Pending("t"))
}

func TestMemoryBrokerClose(t *testing.T) {
	t.Parallel()

	b := broker.NewMemoryBroker()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "t", []byte("a")))
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(ctx, "t", []byte("b")), broker.ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(ctx, "t", nil), broker.ErrBrokerClosed)
	assert.ErrorIs(t, b.Close(), broker.ErrBrokerClosed)
}

func TestMemoryBrokerPublishRacingClose(t *testing.T) {
	t.Parallel()

	for range 20 {
		b := broker.NewMemoryBroker(broker.WithBufferSize(1000))
		require.NoError(t, b.Publish(context.Background(), "appointments", []byte("warm")))

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					err := b.Publish(context.Background(), "appointments", []byte("x"))
					if err != nil {
						assert.ErrorIs(t, err, broker.ErrBrokerClosed)
						return
					}
				}
			}()
		}

		require.NoError(t, b.Close())
		wg.Wait()
	}
}

func TestMemoryBrokerValidation(t *testing.T) {
	t.Parallel()

	b := broker.NewMemoryBroker()
	assert.ErrorIs(t, b.Publish(context.Background(), "", nil), broker.ErrTopicRequired)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, "t", nil), context.Canceled)
}

type keyed struct {
	key string
}

func (k *keyed) Publish(context.Context, string, []byte) error { return nil }

func (k *keyed) PublishKeyed(_ context.Context, _, key string, _ []byte) error {
	k.key = key
	return nil
}

func TestPublishJSON(t *testing.T) {
	t.Parallel()

	t.Run("uses key when supported", func(t *testing.T) {
		t.Parallel()
		p := &keyed{}
		require.NoError(t, broker.PublishJSON(context.Background(), p, "t", "appt-1", map[string]int{"a": 1}))
		assert.Equal(t, "appt-1", p.key)
	})

	t.Run("marshal failure", func(t *testing.T) {
		t.Parallel()
		err := broker.PublishJSON(context.Background(), &keyed{}, "t", "", make(chan int))
		assert.Error(t, err)
	})

	t.Run("memory broker carries key", func(t *testing.T) {
		t.Parallel()
		b := broker.NewMemoryBroker()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		keys := make(chan string, 1)
		go func() {
			_ = b.Subscribe(ctx, "t", func(_ context.Context, msg broker.Message) error {
				keys <- msg.Key
				return nil
			})
		}()

		require.NoError(t, broker.PublishJSON(ctx, b, "t", "k1", "v"))
		select {
		case k := <-keys:
			assert.Equal(t, "k1", k)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	})
}
