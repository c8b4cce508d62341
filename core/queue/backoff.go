package queue

import "time"

// DefaultBackoffBase is the first retry delay when none is configured.
const DefaultBackoffBase = time.Second

// MaxBackoff caps a single retry delay.
const MaxBackoff = 24 * time.Hour

// Backoff computes the delay before a retry.
type Backoff struct {
	Base time.Duration
}

// Exponential returns a backoff of base*2^(attempt-1).
func Exponential(base time.Duration) Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return Backoff{Base: base}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxBackoff || d <= 0 {
			return MaxBackoff
		}
	}
	return min(d, MaxBackoff)
}
