package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aegis/hedge-engine/internal/model"
)

type memoryEntry struct {
	res     model.HedgeResult
	expires time.Time
}

// MemoryCache implements Cache with an in-memory map. Entries expire after
// ttl; a zero ttl keeps them forever. Expired entries are dropped lazily on
// read and when the map reaches maxEntries.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, key string) (*model.HedgeResult, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if c.expired(e) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	// Return a copy to avoid external mutation.
	res := e.res
	return &res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *model.HedgeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	var expires time.Time
	if c.ttl > 0 {
		expires = c.now().Add(c.ttl)
	}
	c.entries[key] = memoryEntry{res: *res, expires: expires}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !c.now().Before(e.expires)
}

// evictLocked drops expired entries, or an arbitrary one if none expired.
func (c *MemoryCache) evictLocked() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
