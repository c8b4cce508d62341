package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/broker"
	streams "github.com/clinicflow/clinicflow/integration/broker/redis"
)

func TestNew_NilClient(t *testing.T) {
	t.Parallel()

	_, err := streams.New(nil)
	assert.ErrorIs(t, err, streams.ErrClientNil)
}

func TestBroker_Closed(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	b, err := streams.New(client)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Close(), broker.ErrBrokerClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), "t", []byte("x")), broker.ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(context.Background(), "t", nil), broker.ErrBrokerClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), "", nil), broker.ErrTopicRequired)
}

func TestBroker_PublishSubscribe_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	prefix := "clinicflow-test-" + time.Now().Format("150405.000000") + ":"
	b, err := streams.New(client,
		streams.WithStreamPrefix(prefix),
		streams.WithGroup("tests"),
		streams.WithBlock(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan broker.Message, 1)
	go func() {
		_ = b.Subscribe(ctx, "appointment-commands", func(_ context.Context, msg broker.Message) error {
			got <- msg
			return nil
		})
	}()

	require.NoError(t, b.PublishKeyed(ctx, "appointment-commands", "appt-1", []byte(`{"action":"UPDATE"}`)))

	select {
	case msg := <-got:
		assert.Equal(t, "appointment-commands", msg.Topic)
		assert.Equal(t, "appt-1", msg.Key)
		assert.JSONEq(t, `{"action":"UPDATE"}`, string(msg.Data))
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}

	assert.Eventually(t, func() bool { return b.Stats().Delivered == 1 }, time.Second, 10*time.Millisecond)
	client.Del(context.Background(), prefix+"appointment-commands")
}

func TestBroker_CancelLeavesBatchPending_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	defer client.Close()

	prefix := "clinicflow-test-" + time.Now().Format("150405.000000") + ":"
	stream := prefix + "appointment-commands"
	defer client.Del(context.Background(), stream)

	b, err := streams.New(client,
		streams.WithStreamPrefix(prefix),
		streams.WithGroup("tests"),
		streams.WithBatchSize(10),
		streams.WithClaimMinIdle(time.Hour),
		streams.WithBlock(100*time.Millisecond))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), "appointment-commands", []byte(`{"action":"UPDATE"}`)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var handled int
	err = b.Subscribe(ctx, "appointment-commands", func(context.Context, broker.Message) error {
		handled++
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, handled)

	pending, err := client.XPending(context.Background(), stream, "tests").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending.Count, "unprocessed entries must stay unacked")
}
