package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/integration/broker/kafka"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, m.Offset)
}

type fakeClaim struct {
	topic string
	msgs  chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return c.topic }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return int64(cap(c.msgs)) }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

// fakeGroup delivers its messages in the first session, then idles.
type fakeGroup struct {
	msgs    []*sarama.ConsumerMessage
	session *fakeSession
	calls   int
	errs    chan error
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, h sarama.ConsumerGroupHandler) error {
	g.calls++
	if g.calls > 1 {
		<-ctx.Done()
		return nil
	}

	claim := &fakeClaim{topic: topics[0], msgs: make(chan *sarama.ConsumerMessage, len(g.msgs))}
	for _, m := range g.msgs {
		claim.msgs <- m
	}
	close(claim.msgs)

	if err := h.Setup(g.session); err != nil {
		return err
	}
	if err := h.ConsumeClaim(g.session, claim); err != nil {
		return err
	}
	return h.Cleanup(g.session)
}

func (g *fakeGroup) Errors() <-chan error      { return g.errs }
func (g *fakeGroup) Close() error              { close(g.errs); return nil }
func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func TestNew_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := kafka.New(kafka.Config{})
	assert.ErrorIs(t, err, kafka.ErrNoBrokers)
}

func TestConfig_SaramaConfig(t *testing.T) {
	t.Parallel()

	cfg, err := kafka.Config{Version: "3.7.0", ClientID: "clinicflow", TLS: true}.SaramaConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.True(t, cfg.Net.TLS.Enable)
	assert.Equal(t, "clinicflow", cfg.ClientID)

	_, err = kafka.Config{Version: "not-a-version"}.SaramaConfig()
	assert.ErrorIs(t, err, kafka.ErrInvalidVersion)
}

func TestBroker_PublishKeyed(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, err := m.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "appt-42" {
			return errors.New("unexpected key " + string(key))
		}
		if m.Topic != "appointment-commands" {
			return errors.New("unexpected topic " + m.Topic)
		}
		return nil
	})
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Key != nil {
			return errors.New("unkeyed publish carried a key")
		}
		return nil
	})

	b, err := kafka.New(kafka.Config{}, kafka.WithProducer(producer), kafka.WithGroupFactory(func(string) (sarama.ConsumerGroup, error) {
		return nil, errors.New("unused")
	}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, broker.PublishJSON(ctx, b, "appointment-commands", "appt-42", map[string]string{"action": "UPDATE"}))
	require.NoError(t, b.Publish(ctx, "notification-dlq", []byte(`{}`)))
	assert.Equal(t, int64(2), b.Stats().Published)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(ctx, "t", nil), broker.ErrBrokerClosed)
}

func TestBroker_PublishFailure(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b, err := kafka.New(kafka.Config{}, kafka.WithProducer(producer), kafka.WithGroupFactory(func(string) (sarama.ConsumerGroup, error) {
		return nil, errors.New("unused")
	}))
	require.NoError(t, err)
	defer b.Close()

	err = b.Publish(context.Background(), "appointment-commands", []byte(`{}`))
	assert.ErrorIs(t, err, kafka.ErrPublishFailed)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestBroker_Subscribe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	session := &fakeSession{ctx: ctx}
	group := &fakeGroup{
		session: session,
		errs:    make(chan error),
		msgs: []*sarama.ConsumerMessage{
			{Topic: "appointment-commands", Key: []byte("appt-1"), Value: []byte(`{"n":1}`), Offset: 10},
			{Topic: "appointment-commands", Key: []byte("appt-1"), Value: []byte(`{"n":2}`), Offset: 11},
			{Topic: "appointment-commands", Key: []byte("appt-2"), Value: []byte(`{"n":3}`), Offset: 12},
		},
	}

	producer := mocks.NewSyncProducer(t, nil)
	b, err := kafka.New(kafka.Config{GroupID: "clinicflow"},
		kafka.WithProducer(producer),
		kafka.WithGroupFactory(func(groupID string) (sarama.ConsumerGroup, error) {
			assert.Equal(t, "clinicflow.appointment-commands", groupID)
			return group, nil
		}))
	require.NoError(t, err)

	var mu sync.Mutex
	var keys []string
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, "appointment-commands", func(_ context.Context, msg broker.Message) error {
			mu.Lock()
			defer mu.Unlock()
			keys = append(keys, msg.Key)
			if len(keys) == 2 {
				return errors.New("handler failure")
			}
			if len(keys) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	mu.Lock()
	assert.Equal(t, []string{"appt-1", "appt-1", "appt-2"}, keys)
	mu.Unlock()

	session.mu.Lock()
	assert.Equal(t, []int64{10, 11, 12}, session.marked)
	session.mu.Unlock()

	stats := b.Stats()
	assert.Equal(t, int64(2), stats.Delivered)
	assert.Equal(t, int64(1), stats.Failed)
	require.NoError(t, b.Close())
}

func TestBroker_GroupPerTopic(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ids []string
	b, err := kafka.New(kafka.Config{GroupID: "clinicflow"},
		kafka.WithProducer(mocks.NewSyncProducer(t, nil)),
		kafka.WithGroupFactory(func(groupID string) (sarama.ConsumerGroup, error) {
			mu.Lock()
			defer mu.Unlock()
			ids = append(ids, groupID)
			return nil, errors.New("no brokers")
		}))
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	noop := func(context.Context, broker.Message) error { return nil }
	assert.ErrorIs(t, b.Subscribe(ctx, "appointment-commands", noop), kafka.ErrGroupFailed)
	assert.ErrorIs(t, b.Subscribe(ctx, "appointment-commands-dlq", noop), kafka.ErrGroupFailed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"clinicflow.appointment-commands", "clinicflow.appointment-commands-dlq"}, ids)
}
