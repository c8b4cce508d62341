// Package ratelimiter implements token bucket rate limiting over a pluggable
// store.
//
// The escalation chain uses it to cap warning alerts per source, so a burst
// of dead letters from one queue produces a bounded number of admin emails
// while every suppressed alert is still logged.
//
//	store := ratelimiter.NewMemoryStore()
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//	g.Go(store.Run(ctx))
//
//	res, err := limiter.Allow(ctx, "notification-dlq")
//	if err == nil && !res.Allowed() {
//		// retry after res.RetryAfter()
//	}
package ratelimiter
