package cache

import (
	"fmt"
	"log"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoizes search results and predictions. It is an optional
// accelerator, never a source of truth: a nil *Cache is valid and behaves as
// a permanent miss, and no operation can fail from the caller's point of
// view.
type Cache struct {
	store *gocache.Cache
}

// New creates a cache with the given default TTL.
func New(defaultTTL time.Duration) *Cache {
	return &Cache{store: gocache.New(defaultTTL, 2*defaultTTL)}
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	return c.store.Get(key)
}

// Set stores value under key for ttl. A non-positive ttl uses the cache's
// default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, value, ttl)
}

// Invalidate removes every entry whose key matches the glob pattern and
// returns how many were dropped. Invalidation is deliberately coarse: any
// ledger mutation clears all search results rather than chasing precise
// keys.
func (c *Cache) Invalidate(pattern string) int {
	if c == nil || c.store == nil {
		return 0
	}
	dropped := 0
	for key := range c.store.Items() {
		ok, err := path.Match(pattern, key)
		if err != nil {
			log.Printf("cache: bad invalidation pattern %q: %v", pattern, err)
			return dropped
		}
		if ok {
			c.store.Delete(key)
			dropped++
		}
	}
	return dropped
}

// Flush drops every entry.
func (c *Cache) Flush() {
	if c == nil || c.store == nil {
		return
	}
	c.store.Flush()
}

// SearchKey derives a cache key from the query shape. Coordinates are
// rounded to three decimals (roughly 100 m) so nearby origins share an
// entry.
func SearchKey(lat, lng, radius float64, spotType string, freeOnly bool) string {
	return fmt.Sprintf("spots:%.3f:%.3f:%d:%s:%t", lat, lng, int(radius), spotType, freeOnly)
}

// PredictionKey derives a cache key for one spot and hour bucket.
func PredictionKey(spotID string, hour int) string {
	return fmt.Sprintf("prediction:%s:%d", spotID, hour)
}
