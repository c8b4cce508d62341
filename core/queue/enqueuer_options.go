package queue

import "time"

// DefaultMaxAttempts is used when a task does not set its own attempt budget.
const DefaultMaxAttempts = 3

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue       string
	defaultPriority    Priority
	defaultMaxAttempts int
	defaultBackoff     Backoff
	now                func() time.Time
}

func WithDefaultQueue(name string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if name != "" {
			o.defaultQueue = name
		}
	}
}

func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		o.defaultPriority = p
	}
}

func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if n > 0 {
			o.defaultMaxAttempts = n
		}
	}
}

func WithDefaultBackoff(b Backoff) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if b.Base > 0 {
			o.defaultBackoff = b
		}
	}
}

// WithEnqueuerClock overrides the time source.
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue           string
	taskName        string
	priority        Priority
	delay           time.Duration
	scheduledAt     *time.Time
	maxAttempts     int
	backoff         Backoff
	deadLetterTopic string
	traceID         string
	ownerID         string
}

// WithQueue sets the queue.
func WithQueue(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.queue = name
		}
	}
}

// WithTaskName sets the job type, which selects the handler.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.taskName = name
	}
}

// WithPriority sets the priority.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
	}
}

// WithDelay runs the task after d. Negative delays run immediately.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		o.delay = max(d, 0)
	}
}

// WithScheduledAt runs the task at t, or immediately if t has passed.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &t
	}
}

// WithMaxAttempts bounds the total number of attempts.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxAttempts = n
	}
}

// WithBackoff sets the retry delay policy.
func WithBackoff(b Backoff) EnqueueOption {
	return func(o *enqueueOptions) {
		if b.Base > 0 {
			o.backoff = b
		}
	}
}

// WithDeadLetterTopic publishes a DeadJob to topic when the task is exhausted.
func WithDeadLetterTopic(topic string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.deadLetterTopic = topic
	}
}

// WithTraceID correlates the task with the command that created it.
func WithTraceID(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.traceID = id
	}
}

// WithOwner records the user the task acts for.
func WithOwner(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.ownerID = id
	}
}
