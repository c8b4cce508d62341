package redis

import (
	"log/slog"
	"time"
)

// Option configures a Broker.
type Option func(*Broker)

// WithGroup sets the consumer group name shared by all replicas.
func WithGroup(group string) Option {
	return func(b *Broker) {
		if group != "" {
			b.group = group
		}
	}
}

// WithConsumer sets this process's consumer name inside the group.
func WithConsumer(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.consumer = name
		}
	}
}

// WithStreamPrefix prefixes every stream key.
func WithStreamPrefix(prefix string) Option {
	return func(b *Broker) {
		b.prefix = prefix
	}
}

// WithMaxLen caps stream length with approximate trimming. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.maxLen = n
		}
	}
}

// WithBatchSize sets how many entries one XREADGROUP call fetches.
func WithBatchSize(n int64) Option {
	return func(b *Broker) {
		if n > 0 {
			b.batch = n
		}
	}
}

// WithBlock sets how long XREADGROUP waits for new entries.
func WithBlock(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithClaimMinIdle sets the idle time after which pending entries of other
// consumers are reclaimed.
func WithClaimMinIdle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.claimMinIdle = d
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
