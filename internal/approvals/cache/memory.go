package cache

import (
	"context"
	"sync"
)

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(ctx context.Context, approvalID string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[approvalID]
	return e, ok, nil
}

func (c *MemoryCache) Put(ctx context.Context, approvalID string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[approvalID] = e
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, approvalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, approvalID)
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
