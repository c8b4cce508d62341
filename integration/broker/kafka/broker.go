package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/logger"
)

// Broker publishes with a SyncProducer and consumes with consumer groups.
type Broker struct {
	producer sarama.SyncProducer
	newGroup func(groupID string) (sarama.ConsumerGroup, error)
	groupID  string
	logger   *slog.Logger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
	closed bool

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Published int64
	Delivered int64
	Failed    int64
}

var (
	_ broker.Broker         = (*Broker)(nil)
	_ broker.KeyedPublisher = (*Broker)(nil)
)

// New creates a Kafka broker. The producer is created eagerly unless
// WithProducer supplies one; consumer groups are created per Subscribe.
func New(cfg Config, opts ...Option) (*Broker, error) {
	b := &Broker{
		groupID: cfg.GroupID,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.producer != nil && b.newGroup != nil {
		return b, nil
	}

	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	scfg, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	if b.newGroup == nil {
		b.newGroup = func(groupID string) (sarama.ConsumerGroup, error) {
			return sarama.NewConsumerGroup(cfg.Brokers, groupID, scfg)
		}
	}
	if b.producer == nil {
		p, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProducerFailure, err)
		}
		b.producer = p
	}

	return b, nil
}

// Publish implements broker.Publisher. Without a key the partitioner picks
// a partition at random.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	return b.PublishKeyed(ctx, topic, "", data)
}

// PublishKeyed implements broker.KeyedPublisher.
func (b *Broker) PublishKeyed(ctx context.Context, topic, key string, data []byte) error {
	if topic == "" {
		return broker.ErrTopicRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.isClosed() {
		return broker.ErrBrokerClosed
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements broker.Subscriber. It joins the consumer group for
// topic and blocks until ctx is cancelled or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string, h broker.Handler) error {
	if topic == "" {
		return broker.ErrTopicRequired
	}

	groupID := b.groupFor(topic)
	group, err := b.openGroup(groupID)
	if err != nil {
		return err
	}

	go func() {
		for err := range group.Errors() {
			b.logger.ErrorContext(ctx, "kafka consumer group error", logger.Topic(topic), logger.Error(err))
		}
	}()

	b.logger.InfoContext(ctx, "kafka subscriber started", logger.Topic(topic), slog.String("group", groupID))

	gh := &groupHandler{broker: b, topic: topic, handle: h}
	for {
		if err := group.Consume(ctx, []string{topic}, gh); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.ErrorContext(ctx, "kafka consume session ended", logger.Topic(topic), logger.Error(err))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close closes the producer and every consumer group.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return broker.ErrBrokerClosed
	}
	b.closed = true
	groups := b.groups
	b.groups = nil
	b.mu.Unlock()

	var errs []error
	for _, g := range groups {
		if err := g.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stats returns current counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

// groupFor scopes the configured group to one topic. Sharing a group id
// across topics would make every Subscribe rebalance the others.
func (b *Broker) groupFor(topic string) string {
	return b.groupID + "." + topic
}

func (b *Broker) openGroup(groupID string) (sarama.ConsumerGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, broker.ErrBrokerClosed
	}
	g, err := b.newGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGroupFailed, err)
	}
	b.groups = append(b.groups, g)
	return g, nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// groupHandler adapts a broker.Handler to sarama.ConsumerGroupHandler.
type groupHandler struct {
	broker *Broker
	topic  string
	handle broker.Handler
}

func (g *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (g *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (g *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			g.process(ctx, m)
			sess.MarkMessage(m, "")
		}
	}
}

func (g *groupHandler) process(ctx context.Context, m *sarama.ConsumerMessage) {
	b := g.broker
	msg := broker.Message{Topic: m.Topic, Key: string(m.Key), Data: m.Value}

	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.ErrorContext(ctx, "message handler panicked",
				logger.Topic(m.Topic),
				logger.Panic(r))
		}
	}()

	if err := g.handle(ctx, msg); err != nil {
		b.failed.Add(1)
		b.logger.ErrorContext(ctx, "message handler failed",
			logger.Topic(m.Topic),
			slog.Int("partition", int(m.Partition)),
			slog.Int64("offset", m.Offset),
			logger.Error(err))
		return
	}
	b.delivered.Add(1)
}
