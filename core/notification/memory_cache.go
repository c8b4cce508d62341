package notification

import (
	"context"
	"slices"

	"github.com/clinicflow/clinicflow/core/cache"
)

// MemoryCache is an in-process Cache bounded by an LRU.
type MemoryCache struct {
	lru *cache.LRUCache[string, []Notification]
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache holding the lists of at most capacity users.
func NewMemoryCache(capacity int) *MemoryCache {
	return &MemoryCache{lru: cache.NewLRUCache[string, []Notification](capacity)}
}

func (m *MemoryCache) Get(_ context.Context, userID string) ([]Notification, bool, error) {
	list, ok := m.lru.Get(userID)
	return slices.Clone(list), ok, nil
}

func (m *MemoryCache) Set(_ context.Context, userID string, list []Notification) error {
	m.lru.Put(userID, slices.Clone(list))
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, userID string) error {
	m.lru.Remove(userID)
	return nil
}
