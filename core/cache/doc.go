// Package cache provides a generic, thread-safe LRU cache.
//
//	c := cache.NewLRUCache[string, []notification.Notification](10_000)
//	c.SetEvictCallback(func(userID string, _ []notification.Notification) {
//		log.Debug("recent list evicted", logger.UserID(userID))
//	})
//	c.Put("user-1", list)
//	if list, ok := c.Get("user-1"); ok {
//		...
//	}
//
// It backs the in-process notification read-list cache used when no Redis
// URL is configured.
package cache
