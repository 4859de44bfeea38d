// Package kernelcache caches per-(level, cell) derived data that is pure
// function of tree geometry — chiefly the neighbour/interaction-list
// slot enumeration every pass recomputes for the same cell — behind a
// ristretto cache, the same cost-aware admission/eviction policy the
// platform's query cache uses for repeated spatial lookups.
package kernelcache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache wraps a ristretto.Cache with the hit/miss accounting the rest of
// the platform's caches report, plus a TTL applied to every Set.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	hits   int64
	misses int64
}

// New returns a Cache sized for maxCost total admitted bytes (cost is
// caller-assigned per Set, usually len(value-equivalent-slots)).
func New(maxCost int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("kernelcache: %w", err)
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

// NeighborKey identifies one cell's neighbour enumeration at a level —
// the same key every engine derives, so a cell visited by more than one
// pass or more than one engine run hits the same cache entry.
func NeighborKey(level int, morton uint64) string {
	return fmt.Sprintf("nb:%d:%d", level, morton)
}

// Get retrieves a previously cached value.
func (c *Cache) Get(key string) (any, bool) {
	v, found := c.cache.Get(key)
	if found {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return v, found
}

// Set stores value under key with the given admission cost.
func (c *Cache) Set(key string, value any, cost int64) {
	c.cache.SetWithTTL(key, value, cost, c.ttl)
}

// Metrics reports cumulative hit/miss counts.
type Metrics struct {
	Hits, Misses int64
	HitRate      float64
}

func (c *Cache) Metrics() Metrics {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Metrics{Hits: hits, Misses: misses, HitRate: rate}
}

// Close releases the underlying ristretto cache.
func (c *Cache) Close() {
	c.cache.Close()
}
