package schema

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a fetched schema stays fresh.
const DefaultCacheTTL = time.Hour

// CachedProvider wraps a Provider and caches its schema for a TTL.
// Expired entries are refetched on the next read; Invalidate forces a
// refetch regardless of age.
type CachedProvider struct {
	provider Provider
	ttl      time.Duration

	mu      sync.RWMutex
	tables  []Table
	fetched time.Time
}

var _ Provider = (*CachedProvider)(nil)

// NewCachedProvider wraps provider with a cache. A non-positive ttl
// uses DefaultCacheTTL.
func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		provider: provider,
		ttl:      ttl,
	}
}

// Schema returns the cached tables when fresh, refetching otherwise.
func (c *CachedProvider) Schema(ctx context.Context) ([]Table, error) {
	c.mu.RLock()
	if c.fresh() {
		tables := c.tables
		c.mu.RUnlock()
		return tables, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another reader may have refetched while we waited for the lock.
	if c.fresh() {
		return c.tables, nil
	}

	tables, err := c.provider.Schema(ctx)
	if err != nil {
		return nil, err
	}

	c.tables = tables
	c.fetched = time.Now()
	return tables, nil
}

// Invalidate discards the cached schema.
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = nil
	c.fetched = time.Time{}
}

// fresh reports whether the cached entry is present and inside its TTL.
// Callers must hold at least a read lock.
func (c *CachedProvider) fresh() bool {
	return c.tables != nil && time.Since(c.fetched) < c.ttl
}
