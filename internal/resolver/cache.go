package resolver

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/bavix/scanbridge/internal/metrics"
)

const (
	defaultCacheEntries = 1024
	defaultCacheTTL     = 5 * time.Minute
)

// CachedResolver memoizes successful resolutions and coalesces concurrent
// lookups of the same code. Degraded answers are returned but not stored.
type CachedResolver struct {
	Next Resolver

	lru *lru.LRU[string, ResolvedProduct]
	sf  singleflight.Group
}

// NewCachedResolver wraps next with an LRU of maxEntries whose entries expire after ttl.
func NewCachedResolver(next Resolver, maxEntries int, ttl time.Duration) *CachedResolver {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}

	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &CachedResolver{Next: next, lru: lru.NewLRU[string, ResolvedProduct](maxEntries, nil, ttl)}
}

func (c *CachedResolver) Resolve(ctx context.Context, code string) (ResolvedProduct, error) {
	key := strings.TrimSpace(code)

	if it, ok := c.lru.Get(key); ok {
		metrics.M.CacheHits.Inc()

		return it.clone(), nil
	}

	metrics.M.CacheMisses.Inc()

	v, err, _ := c.sf.Do(key, func() (any, error) {
		out, err := c.Next.Resolve(ctx, key)
		if err == nil && !out.Degraded() {
			c.lru.Add(key, out)
			metrics.M.CacheEntries.Set(float64(c.lru.Len()))
		}

		return out, err
	})

	out, _ := v.(ResolvedProduct)

	return out.clone(), err
}

// Purge drops every cached entry.
func (c *CachedResolver) Purge() {
	c.lru.Purge()
	metrics.M.CacheEntries.Set(0)
}

// Len returns the number of cached entries.
func (c *CachedResolver) Len() int { return c.lru.Len() }
