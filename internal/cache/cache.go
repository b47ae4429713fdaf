// Package cache implements the shared in-memory item cache (spec.md §5):
// capacity 200, TTL 5 minutes, refresh-on-read, any write invalidates the
// identifier.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kioku-ai/kioku/internal/model"
)

type entry struct {
	item      model.MemoryItem
	expiresAt time.Time
}

// ItemCache is a bounded, TTL-bounded cache of MemoryItems keyed by id.
// Safe for concurrent use.
type ItemCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[uuid.UUID, entry]
	ttl      time.Duration
	now      func() time.Time
}

// New builds an ItemCache with the given capacity and TTL.
func New(capacity int, ttl time.Duration) *ItemCache {
	l, _ := lru.New[uuid.UUID, entry](capacity)
	return &ItemCache{lru: l, ttl: ttl, now: time.Now}
}

// Get returns the cached item if present and unexpired, refreshing its
// recency in the LRU on every successful read.
func (c *ItemCache) Get(id uuid.UUID) (model.MemoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(id)
	if !ok {
		return model.MemoryItem{}, false
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(id)
		return model.MemoryItem{}, false
	}
	return e.item, true
}

// Put stores or refreshes an item's cache entry.
func (c *ItemCache) Put(item model.MemoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(item.ID, entry{item: item, expiresAt: c.now().Add(c.ttl)})
}

// Invalidate removes an identifier, called by every write path that
// changes an item (spec.md §5 "Shared resources").
func (c *ItemCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

// Clear empties the cache, called after memory_maintain completes
// (spec.md §4.8 "After maintenance, the item cache is fully cleared").
func (c *ItemCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the number of entries currently cached, including expired
// ones not yet evicted by a read.
func (c *ItemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
