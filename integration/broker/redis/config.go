package redis

import "time"

// Config holds Redis Streams broker settings.
type Config struct {
	Group        string        `env:"REDIS_STREAM_GROUP" envDefault:"clinicflow"`
	Consumer     string        `env:"REDIS_STREAM_CONSUMER"`
	StreamPrefix string        `env:"REDIS_STREAM_PREFIX" envDefault:"clinicflow:"`
	MaxLen       int64         `env:"REDIS_STREAM_MAX_LEN" envDefault:"100000"`
	BatchSize    int64         `env:"REDIS_STREAM_BATCH_SIZE" envDefault:"16"`
	Block        time.Duration `env:"REDIS_STREAM_BLOCK" envDefault:"2s"`
	ClaimMinIdle time.Duration `env:"REDIS_STREAM_CLAIM_MIN_IDLE" envDefault:"1m"`
}

// Options converts the config to broker options.
func (c Config) Options() []Option {
	return []Option{
		WithGroup(c.Group),
		WithConsumer(c.Consumer),
		WithStreamPrefix(c.StreamPrefix),
		WithMaxLen(c.MaxLen),
		WithBatchSize(c.BatchSize),
		WithBlock(c.Block),
		WithClaimMinIdle(c.ClaimMinIdle),
	}
}
