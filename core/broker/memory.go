package broker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/clinicflow/clinicflow/core/logger"
)

// DefaultBufferSize is the per-topic buffer of the memory broker.
const DefaultBufferSize = 100

// MemoryBroker is an in-process broker backed by one buffered channel per topic.
// Concurrent subscribers on the same topic compete for messages, mirroring a
// consumer group. Publish never blocks: a full buffer yields ErrBufferFull.
type MemoryBroker struct {
	mu         sync.RWMutex
	topics     map[string]chan Message
	bufferSize int
	closed     bool
	logger     *slog.Logger

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// MemoryBrokerStats provides observability counters.
type MemoryBrokerStats struct {
	Published int64
	Delivered int64
	Failed    int64
}

// MemoryBrokerOption configures a MemoryBroker.
type MemoryBrokerOption func(*MemoryBroker)

// WithBufferSize sets the per-topic buffer size.
func WithBufferSize(size int) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(l *slog.Logger) MemoryBrokerOption {
	return func(b *MemoryBroker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewMemoryBroker creates an in-memory broker.
func NewMemoryBroker(opts ...MemoryBrokerOption) *MemoryBroker {
	b := &MemoryBroker{
		topics:     make(map[string]chan Message),
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements Publisher.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, data []byte) error {
	return b.PublishKeyed(ctx, topic, "", data)
}

// PublishKeyed implements KeyedPublisher. The key is carried on the message
// but does not affect routing: a single channel already preserves order.
func (b *MemoryBroker) PublishKeyed(ctx context.Context, topic, key string, data []byte) error {
	if topic == "" {
		return ErrTopicRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := Message{Topic: topic, Key: key, Data: append([]byte(nil), data...)}

	// The send happens under the lock so Close cannot close ch in between.
	b.mu.RLock()
	ch, ok := b.topics[topic]
	if ok && !b.closed {
		defer b.mu.RUnlock()
		return b.send(ch, msg)
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return b.send(b.topicLocked(topic), msg)
}

// send never blocks, so it is safe to call with b.mu held.
func (b *MemoryBroker) send(ch chan Message, msg Message) error {
	select {
	case ch <- msg:
		b.published.Add(1)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrBufferFull, msg.Topic)
	}
}

// Subscribe implements Subscriber. It blocks until ctx is cancelled or the broker is closed.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	if topic == "" {
		return ErrTopicRequired
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	ch := b.topicLocked(topic)
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "memory broker subscriber started", logger.Topic(topic))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(ctx, h, msg)
		}
	}
}

func (b *MemoryBroker) deliver(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.ErrorContext(ctx, "message handler panicked",
				logger.Topic(msg.Topic),
				logger.Panic(r))
		}
	}()

	if err := h(ctx, msg); err != nil {
		b.failed.Add(1)
		b.logger.ErrorContext(ctx, "message handler failed",
			logger.Topic(msg.Topic),
			logger.Error(err))
		return
	}
	b.delivered.Add(1)
}

// Pending returns the number of buffered, undelivered messages on a topic.
func (b *MemoryBroker) Pending(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ch, ok := b.topics[topic]; ok {
		return len(ch)
	}
	return 0
}

// Close closes every topic channel. Subscribers drain and return.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	b.closed = true
	for _, ch := range b.topics {
		close(ch)
	}
	return nil
}

// Stats returns current counters.
func (b *MemoryBroker) Stats() MemoryBrokerStats {
	return MemoryBrokerStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

func (b *MemoryBroker) topicLocked(topic string) chan Message {
	ch, ok := b.topics[topic]
	if !ok {
		ch = make(chan Message, b.bufferSize)
		b.topics[topic] = ch
	}
	return ch
}
