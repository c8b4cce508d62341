package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/clinicflow/core/broker"
	"github.com/clinicflow/clinicflow/core/config"
	"github.com/clinicflow/clinicflow/core/email"
	"github.com/clinicflow/clinicflow/core/logger"
	"github.com/clinicflow/clinicflow/core/notification"
	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/integration/broker/kafka"
	streams "github.com/clinicflow/clinicflow/integration/broker/redis"
	rediscache "github.com/clinicflow/clinicflow/integration/cache/redis"
	"github.com/clinicflow/clinicflow/integration/email/postmark"
	"github.com/clinicflow/clinicflow/integration/email/smtp"
	pgqueue "github.com/clinicflow/clinicflow/integration/queue/postgres"
	"github.com/clinicflow/clinicflow/pkg/metrics"
)

// newBroker returns the selected broker and whether commands should be keyed
// by entity.
func newBroker(cfg Config, rdb *redis.Client, log *slog.Logger, reg *metrics.Registry) (broker.Broker, bool, error) {
	blog := log.With(logger.Component("broker"))

	switch cfg.Broker {
	case BrokerMemory:
		b := broker.NewMemoryBroker(broker.WithMemoryLogger(blog))
		registerBrokerMetrics(reg, func() (int64, int64, int64) {
			s := b.Stats()
			return s.Published, s.Delivered, s.Failed
		})
		return b, false, nil

	case BrokerRedis:
		var scfg streams.Config
		if err := config.Load(&scfg); err != nil {
			return nil, false, err
		}
		b, err := streams.New(rdb, append(scfg.Options(), streams.WithLogger(blog))...)
		if err != nil {
			return nil, false, err
		}
		registerBrokerMetrics(reg, func() (int64, int64, int64) {
			s := b.Stats()
			return s.Published, s.Delivered, s.Failed
		})
		reg.MustCounter("broker", "reclaimed_total", "Stream entries reclaimed from idle consumers.", func() int64 {
			return b.Stats().Reclaimed
		})
		return b, false, nil

	case BrokerKafka:
		var kcfg kafka.Config
		if err := config.Load(&kcfg); err != nil {
			return nil, false, err
		}
		b, err := kafka.New(kcfg, kafka.WithLogger(blog))
		if err != nil {
			return nil, false, err
		}
		registerBrokerMetrics(reg, func() (int64, int64, int64) {
			s := b.Stats()
			return s.Published, s.Delivered, s.Failed
		})
		return b, kcfg.PartitionByEntity, nil
	}

	return nil, false, fmt.Errorf("unknown broker %q", cfg.Broker)
}

func newEmailSender(cfg Config, log *slog.Logger) (email.EmailSender, error) {
	switch cfg.EmailProvider {
	case EmailDev:
		return email.NewDevSender(cfg.DevMailDir, email.WithDevLogger(log.With(logger.Component("email")))), nil

	case EmailPostmark:
		var pcfg postmark.Config
		if err := config.Load(&pcfg); err != nil {
			return nil, err
		}
		return postmark.New(pcfg)

	case EmailSMTP:
		var scfg smtp.Config
		if err := config.Load(&scfg); err != nil {
			return nil, err
		}
		return smtp.New(scfg)
	}

	return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
}

func newQueueStorage(cfg Config, pool *pgxpool.Pool, log *slog.Logger) (queue.Storage, error) {
	switch cfg.QueueBackend {
	case BackendPostgres:
		return pgqueue.New(pool, pgqueue.WithLogger(log.With(logger.Component("queue_storage"))))
	case BackendMemory:
		return queue.NewMemoryStorage(
			queue.WithLockCheckInterval(cfg.Queue.LockCheckInterval),
			queue.WithMemoryStorageLogger(log.With(logger.Component("queue_storage"))),
		), nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
}

func newNotificationCache(cfg Config, rdb *redis.Client) (notification.Cache, error) {
	switch cfg.NotificationCache {
	case BackendRedis:
		return rediscache.New(rdb)
	case BackendMemory:
		return notification.NewMemoryCache(cfg.NotificationCacheSize), nil
	}
	return nil, fmt.Errorf("unknown notification cache %q", cfg.NotificationCache)
}
