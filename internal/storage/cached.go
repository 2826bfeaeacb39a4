package storage

import (
	"context"
	"sync"

	"credserver/internal/model"
)

// CachedStore serves Load from memory after the first successful read.
// The cache is dropped on Save and on Invalidate, typically called by a file watcher.
type CachedStore struct {
	next Store

	mu       sync.RWMutex
	cached   *model.Credentials
	gen      uint64
	disabled bool
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps next.
func NewCachedStore(next Store) *CachedStore {
	return &CachedStore{next: next}
}

// Load returns a copy of the cached document, reading through on a miss.
// Errors are never cached.
func (c *CachedStore) Load(ctx context.Context) (*model.Credentials, error) {
	c.mu.RLock()
	cached, gen, disabled := c.cached, c.gen, c.disabled
	c.mu.RUnlock()
	if disabled {
		return c.next.Load(ctx)
	}
	if cached != nil {
		out := *cached
		return &out, nil
	}

	creds, err := c.next.Load(ctx)
	if err != nil {
		return nil, err
	}

	// An invalidation during the read means creds may already be stale.
	c.mu.Lock()
	if c.gen == gen && !c.disabled {
		cp := *creds
		c.cached = &cp
	}
	c.mu.Unlock()
	return creds, nil
}

// Save writes through and drops the cache.
func (c *CachedStore) Save(ctx context.Context, creds *model.Credentials) error {
	defer c.Invalidate()
	return c.next.Save(ctx, creds)
}

// Exists always asks the underlying store.
func (c *CachedStore) Exists(ctx context.Context) (bool, error) {
	return c.next.Exists(ctx)
}

// Invalidate drops the cached document.
func (c *CachedStore) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.gen++
	c.mu.Unlock()
}

// Disable turns the cache off for good. Used when change notifications are lost.
func (c *CachedStore) Disable() {
	c.mu.Lock()
	c.cached = nil
	c.disabled = true
	c.gen++
	c.mu.Unlock()
}
