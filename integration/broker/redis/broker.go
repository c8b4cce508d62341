package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/logger"
)

const (
	fieldData = "data"
	fieldKey  = "key"
)

// Broker publishes to and consumes from Redis Streams.
type Broker struct {
	client       redis.UniversalClient
	group        string
	consumer     string
	prefix       string
	maxLen       int64
	batch        int64
	block        time.Duration
	claimMinIdle time.Duration
	logger       *slog.Logger
	closed       atomic.Bool

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	reclaimed atomic.Int64
}

// Stats provides observability counters.
type Stats struct {
	Published int64
	Delivered int64
	Failed    int64
	Reclaimed int64
}

var (
	_ broker.Broker         = (*Broker)(nil)
	_ broker.KeyedPublisher = (*Broker)(nil)
)

// New creates a Streams broker over an existing client.
func New(client redis.UniversalClient, opts ...Option) (*Broker, error) {
	if client == nil {
		return nil, ErrClientNil
	}

	b := &Broker{
		client:       client,
		group:        "clinicflow",
		consumer:     "consumer-" + uuid.NewString(),
		batch:        16,
		block:        2 * time.Second,
		claimMinIdle: time.Minute,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Publish implements broker.Publisher.
func (b *Broker) Publish(ctx context.Context, topic string, data []byte) error {
	return b.PublishKeyed(ctx, topic, "", data)
}

// PublishKeyed implements broker.KeyedPublisher. Streams are totally ordered,
// so the key is stored on the entry but does not change routing.
func (b *Broker) PublishKeyed(ctx context.Context, topic, key string, data []byte) error {
	if topic == "" {
		return broker.ErrTopicRequired
	}
	if b.closed.Load() {
		return broker.ErrBrokerClosed
	}

	args := &redis.XAddArgs{
		Stream: b.stream(topic),
		Values: map[string]any{fieldData: data, fieldKey: key},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements broker.Subscriber. It blocks until ctx is cancelled
// or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string, h broker.Handler) error {
	if topic == "" {
		return broker.ErrTopicRequired
	}
	if b.closed.Load() {
		return broker.ErrBrokerClosed
	}

	stream := b.stream(topic)
	if err := b.ensureGroup(ctx, stream); err != nil {
		return err
	}

	b.logger.InfoContext(ctx, "redis stream subscriber started",
		logger.Topic(topic),
		slog.String("group", b.group),
		slog.String("consumer", b.consumer))

	claimCursor := "0-0"
	lastClaim := time.Time{}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.closed.Load() {
			return nil
		}

		if time.Since(lastClaim) >= b.claimMinIdle {
			claimCursor = b.reclaim(ctx, topic, stream, claimCursor, h)
			lastClaim = time.Now()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    b.batch,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.ErrorContext(ctx, "failed to read from stream", logger.Topic(topic), logger.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.block):
			}
			continue
		}

		for _, s := range streams {
			if !b.deliverAll(ctx, topic, stream, s.Messages, h) {
				return ctx.Err()
			}
		}
	}
}

// Close stops subscribers after their current read. The client is owned by
// the caller and stays open.
func (b *Broker) Close() error {
	if b.closed.Swap(true) {
		return broker.ErrBrokerClosed
	}
	return nil
}

// Stats returns current counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Reclaimed: b.reclaimed.Load(),
	}
}

func (b *Broker) stream(topic string) string {
	return b.prefix + topic
}

func (b *Broker) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: %s: %w", ErrGroupCreateFail, stream, err)
	}
	return nil
}

func (b *Broker) reclaim(ctx context.Context, topic, stream, cursor string, h broker.Handler) string {
	msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    b.group,
		Consumer: b.consumer,
		MinIdle:  b.claimMinIdle,
		Start:    cursor,
		Count:    b.batch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			b.logger.WarnContext(ctx, "failed to reclaim pending entries", logger.Topic(topic), logger.Error(err))
		}
		return cursor
	}

	b.reclaimed.Add(int64(len(msgs)))
	if !b.deliverAll(ctx, topic, stream, msgs, h) {
		return cursor
	}
	if next == "" {
		return "0-0"
	}
	return next
}

// deliverAll hands msgs to h in order and reports whether the whole batch was
// processed. Once ctx is cancelled the remaining entries stay pending and
// unacked, so XAUTOCLAIM hands them to the next consumer.
func (b *Broker) deliverAll(ctx context.Context, topic, stream string, msgs []redis.XMessage, h broker.Handler) bool {
	for i, m := range msgs {
		if ctx.Err() != nil {
			b.logger.InfoContext(ctx, "subscriber stopping, leaving entries pending",
				logger.Topic(topic),
				slog.Int("pending", len(msgs)-i))
			return false
		}
		b.deliver(ctx, topic, stream, m, h)
	}
	return true
}

func (b *Broker) deliver(ctx context.Context, topic, stream string, m redis.XMessage, h broker.Handler) {
	defer func() {
		if err := b.client.XAck(context.WithoutCancel(ctx), stream, b.group, m.ID).Err(); err != nil {
			b.logger.ErrorContext(ctx, "failed to ack stream entry",
				logger.Topic(topic),
				slog.String("entry_id", m.ID),
				logger.Error(err))
		}
	}()

	msg, err := decode(topic, m)
	if err != nil {
		b.failed.Add(1)
		b.logger.WarnContext(ctx, "dropping malformed stream entry",
			logger.Topic(topic),
			slog.String("entry_id", m.ID),
			logger.Error(err))
		return
	}

	if err := b.safeHandle(ctx, h, msg); err != nil {
		b.failed.Add(1)
		b.logger.ErrorContext(ctx, "message handler failed", logger.Topic(topic), logger.Error(err))
		return
	}
	b.delivered.Add(1)
}

func (b *Broker) safeHandle(ctx context.Context, h broker.Handler, msg broker.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message handler panicked: %v", r)
		}
	}()
	return h(ctx, msg)
}

func decode(topic string, m redis.XMessage) (broker.Message, error) {
	msg := broker.Message{Topic: topic}

	switch v := m.Values[fieldData].(type) {
	case string:
		msg.Data = []byte(v)
	case []byte:
		msg.Data = v
	default:
		return msg, ErrMalformedEntry
	}

	if k, ok := m.Values[fieldKey].(string); ok {
		msg.Key = k
	}
	return msg, nil
}
