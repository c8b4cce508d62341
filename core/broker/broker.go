package broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is a single delivery handed to a Handler.
type Message struct {
	Topic string
	Key   string
	Data  []byte
}

// Handler processes one delivered message. A returned error is logged by the
// subscriber; it never stops the consumer loop.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends raw messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// KeyedPublisher is implemented by brokers that can route messages sharing a
// key to the same single-consumer lane (e.g. a Kafka partition).
type KeyedPublisher interface {
	PublishKeyed(ctx context.Context, topic, key string, data []byte) error
}

// Subscriber consumes messages from a topic until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

// Broker combines publishing, subscribing and lifecycle.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// PublishJSON marshals v and publishes it. When key is not empty and p
// supports keyed publishing the key is used for partitioning.
func PublishJSON(ctx context.Context, p Publisher, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for topic %q: %w", topic, err)
	}

	if key != "" {
		if kp, ok := p.(KeyedPublisher); ok {
			return kp.PublishKeyed(ctx, topic, key, data)
		}
	}

	return p.Publish(ctx, topic, data)
}
