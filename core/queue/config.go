package queue

import "time"

// Config holds worker and enqueuer settings.
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	Queues             []string      `env:"QUEUE_WORKER_QUEUES" envDefault:"appointment-scheduled,notification-scheduled" envSeparator:","`
	LockCheckInterval  time.Duration `env:"QUEUE_LOCK_CHECK_INTERVAL" envDefault:"1s"`

	DefaultQueue       string        `env:"QUEUE_DEFAULT_QUEUE" envDefault:"default"`
	DefaultPriority    Priority      `env:"QUEUE_DEFAULT_PRIORITY" envDefault:"50"`
	DefaultMaxAttempts int           `env:"QUEUE_DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	DefaultBackoffBase time.Duration `env:"QUEUE_DEFAULT_BACKOFF_BASE" envDefault:"1s"`
}

// DefaultConfig returns defaults matching the env tags.
func DefaultConfig() Config {
	return Config{
		PollInterval:       time.Second,
		LockTimeout:        5 * time.Minute,
		ShutdownTimeout:    30 * time.Second,
		MaxConcurrentTasks: 10,
		Queues:             []string{"appointment-scheduled", "notification-scheduled"},
		LockCheckInterval:  time.Second,
		DefaultQueue:       DefaultQueueName,
		DefaultPriority:    PriorityDefault,
		DefaultMaxAttempts: DefaultMaxAttempts,
		DefaultBackoffBase: DefaultBackoffBase,
	}
}
