package memory

import (
	"context"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize is the number of queries kept when none is configured.
	DefaultSize = 256
	// DefaultTTL bounds how long a search result stays fresh.
	DefaultTTL = 10 * time.Minute
)

// Cache implements ports.SearchCache with an in-process expiring LRU.
// Safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, []domain.SearchResult]
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	size int
	ttl  time.Duration
}

// WithSize sets the maximum number of cached queries.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// NewCache creates a new in-memory search cache.
func NewCache(opts ...Option) *Cache {
	o := options{size: DefaultSize, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache{
		lru: expirable.NewLRU[string, []domain.SearchResult](o.size, nil, o.ttl),
	}
}

var _ ports.SearchCache = (*Cache)(nil)

// Get returns a copy of the cached results.
func (c *Cache) Get(ctx context.Context, key string) ([]domain.SearchResult, bool, error) {
	results, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]domain.SearchResult(nil), results...), true, nil
}

// Set stores a copy of results so callers can't mutate the cache through their slice.
func (c *Cache) Set(ctx context.Context, key string, results []domain.SearchResult) error {
	c.lru.Add(key, append([]domain.SearchResult(nil), results...))
	return nil
}

// Delete removes the entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
