package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
)

// Cached decorates a Searcher with a result cache.
// Cache failures are logged and fall through to the backend.
type Cached struct {
	next   ports.Searcher
	cache  ports.SearchCache
	logger *slog.Logger
}

// NewCached wraps next with cache.
func NewCached(next ports.Searcher, cache ports.SearchCache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

var _ ports.Searcher = (*Cached)(nil)

// CacheKey normalizes a query into a cache key.
func CacheKey(query string, maxResults int) string {
	return fmt.Sprintf("%s|%d", strings.ToLower(strings.Join(strings.Fields(query), " ")), maxResults)
}

// Search implements ports.Searcher.
func (c *Cached) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	key := CacheKey(query, maxResults)

	hit, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("search cache read failed", "key", key, "error", err)
	} else if ok {
		c.logger.Debug("search cache hit", "key", key)
		return hit, nil
	}

	results, err := c.next.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, results); err != nil {
		c.logger.Warn("search cache write failed", "key", key, "error", err)
	}
	return results, nil
}
