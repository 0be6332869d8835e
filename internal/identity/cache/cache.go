// Package cache holds the last observed ledger view per normalized address.
package cache

import (
	"context"
	"sync"
	"time"

	"identityvault/internal/identity/models"
)

// ViewCache caches ledger reads. Keys are normalized addresses.
type ViewCache interface {
	Get(ctx context.Context, address string) (*models.LedgerIdentity, bool, error)
	Put(ctx context.Context, view *models.LedgerIdentity) error
	Invalidate(ctx context.Context, address string) error
}

type cachedView struct {
	view     models.LedgerIdentity
	storedAt time.Time
}

// InMemoryCache is a TTL map. A zero TTL keeps entries until invalidated.
type InMemoryCache struct {
	mu    sync.RWMutex
	views map[string]cachedView
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*InMemoryCache)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

func NewInMemoryCache(ttl time.Duration, opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		views: make(map[string]cachedView),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Get(_ context.Context, address string) (*models.LedgerIdentity, bool, error) {
	c.mu.RLock()
	entry, ok := c.views[address]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		if cur, still := c.views[address]; still && cur.storedAt.Equal(entry.storedAt) {
			delete(c.views, address)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	view := entry.view
	return &view, true, nil
}

func (c *InMemoryCache) Put(_ context.Context, view *models.LedgerIdentity) error {
	if view == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[view.Address] = cachedView{view: *view, storedAt: c.now()}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, address)
	return nil
}
