package kafka

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Config holds Kafka connection settings.
type Config struct {
	Brokers           []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	GroupID           string        `env:"KAFKA_GROUP_ID" envDefault:"clinicflow"`
	ClientID          string        `env:"KAFKA_CLIENT_ID" envDefault:"clinicflow"`
	Version           string        `env:"KAFKA_VERSION" envDefault:"3.7.0"`
	TLS               bool          `env:"KAFKA_TLS" envDefault:"false"`
	PartitionByEntity bool          `env:"KAFKA_PARTITION_BY_ENTITY" envDefault:"false"`
	MetadataRetryMax  int           `env:"KAFKA_METADATA_RETRY_MAX" envDefault:"5"`
	MetadataBackoff   time.Duration `env:"KAFKA_METADATA_RETRY_BACKOFF" envDefault:"2s"`
}

// SaramaConfig builds the client configuration shared by producer and consumers.
func (c Config) SaramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()

	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidVersion, err)
		}
		cfg.Version = v
	}
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.MaxOpenRequests = 1
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Metadata.Retry.Max = c.MetadataRetryMax
	cfg.Metadata.Retry.Backoff = c.MetadataBackoff

	if c.TLS {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return cfg, nil
}
