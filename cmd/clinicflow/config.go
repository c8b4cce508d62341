package main

import (
	"time"

	"github.com/clinicflow/clinicflow/core/queue"
	"github.com/clinicflow/clinicflow/core/server"
	"github.com/clinicflow/clinicflow/integration/database/pg"
	"github.com/clinicflow/clinicflow/pkg/ratelimiter"
)

const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
	BrokerKafka  = "kafka"

	EmailDev      = "dev"
	EmailPostmark = "postmark"
	EmailSMTP     = "smtp"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the process configuration. Adapter specific settings (redis,
// kafka, postmark, smtp) are loaded only when the adapter is selected.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"clinicflow"`
	Environment string `env:"APP_ENV" envDefault:"production"`

	Broker            string `env:"BROKER" envDefault:"memory"`
	QueueBackend      string `env:"QUEUE_BACKEND" envDefault:"postgres"`
	NotificationCache string `env:"NOTIFICATION_CACHE" envDefault:"memory"`
	EmailProvider     string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	DevMailDir        string `env:"DEV_MAIL_DIR" envDefault:"tmp/mail"`
	AdminEmail        string `env:"ADMIN_EMAIL,required"`

	CommandMaxRetries         int           `env:"COMMAND_MAX_RETRIES" envDefault:"5"`
	AppointmentJobMaxAttempts int           `env:"APPOINTMENT_JOB_MAX_ATTEMPTS" envDefault:"5"`
	AppointmentJobBackoff     time.Duration `env:"APPOINTMENT_JOB_BACKOFF_BASE" envDefault:"30s"`
	NotificationMaxAttempts   int           `env:"NOTIFICATION_MAX_ATTEMPTS" envDefault:"3"`
	NotificationBackoff       time.Duration `env:"NOTIFICATION_BACKOFF_BASE" envDefault:"2s"`
	NotificationCacheSize     int           `env:"NOTIFICATION_CACHE_SIZE" envDefault:"10000"`

	RealtimeShards int `env:"REALTIME_SHARDS" envDefault:"32"`

	AlertThrottleEnabled bool               `env:"ALERT_THROTTLE_ENABLED" envDefault:"true"`
	AlertThrottle        ratelimiter.Config `envPrefix:"ALERT_THROTTLE_"`

	Server server.Config
	Queue  queue.Config
	PG     pg.Config
}

// Development reports whether the process runs with development defaults.
func (c Config) Development() bool {
	return c.Environment == "development"
}
