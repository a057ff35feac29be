// Package featurecache decorates a feature store with an in-process LRU
// and an optional shared Redis tier.
package featurecache

import (
	"context"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
)

// Resolver is the feature store being cached.
type Resolver interface {
	Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error)
}

// Cached wraps a Resolver with an in-memory LRU cache keyed by filter.
type Cached struct {
	inner   Resolver
	cache   *lruCache
	metrics *observability.Metrics
}

// New creates a cache decorator around a resolver.
func New(inner Resolver, maxEntries int, metrics *observability.Metrics) *Cached {
	return &Cached{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *Cached) Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error) {
	key := filter.Key()
	if geoms, ok := c.cache.get(key); ok {
		c.metrics.AOICache.WithLabelValues("hit").Inc()
		return geoms, nil
	}
	c.metrics.AOICache.WithLabelValues("miss").Inc()
	geoms, err := c.inner.Resolve(ctx, filter)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty results so boundaries added later can still resolve.
	if len(geoms) > 0 {
		c.cache.put(key, geoms)
	}
	return geoms, nil
}

// lruCache is a simple thread-safe LRU cache of resolved geometries.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []geom.T
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]geom.T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []geom.T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
