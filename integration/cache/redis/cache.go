// Package redis caches each user's recent notification list in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/clinicflow/core/notification"
)

const (
	DefaultPrefix = "clinicflow:notifications:recent:"
	DefaultTTL    = 10 * time.Minute
)

var ErrClientNil = errors.New("notification cache: client cannot be nil")

// Cache implements notification.Cache with one JSON value per user.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ notification.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets how long a cached list lives.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a cache over client.
func New(client redis.UniversalClient, opts ...Option) (*Cache, error) {
	if client == nil {
		return nil, ErrClientNil
	}
	c := &Cache{client: client, prefix: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached list. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, userID string) ([]notification.Notification, bool, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached notifications: %w", err)
	}

	var list []notification.Notification
	if err := json.Unmarshal(data, &list); err != nil {
		// A corrupt entry is treated as a miss and removed.
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, false, nil
	}
	return list, true, nil
}

// Set stores the list with the configured TTL.
func (c *Cache) Set(ctx context.Context, userID string, list []notification.Notification) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode notifications: %w", err)
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache notifications: %w", err)
	}
	return nil
}

// Invalidate drops the cached list.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached notifications: %w", err)
	}
	return nil
}

func (c *Cache) key(userID string) string {
	return c.prefix + userID
}
