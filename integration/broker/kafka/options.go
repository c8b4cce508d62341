package kafka

import (
	"log/slog"

	"github.com/IBM/sarama"
)

// Option configures a Broker.
type Option func(*Broker)

// WithProducer replaces the producer created from Config.
func WithProducer(p sarama.SyncProducer) Option {
	return func(b *Broker) {
		if p != nil {
			b.producer = p
		}
	}
}

// WithGroupFactory replaces how consumer groups are created.
func WithGroupFactory(fn func(groupID string) (sarama.ConsumerGroup, error)) Option {
	return func(b *Broker) {
		if fn != nil {
			b.newGroup = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}
