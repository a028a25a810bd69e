// Package cache memoizes orchestration results for a bounded time.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/pario-ai/backstop/pkg/models"
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache with a fixed capacity. When full, the
// oldest entry by creation time is evicted.
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List // front is oldest
	items    map[string]*list.Element
	hits     int64
	misses   int64
	now      func() time.Time
}

// New creates a Cache with the given default TTL and capacity.
func New[V any](ttl time.Duration, capacity int) *Cache[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// SetClock replaces time.Now. Intended for tests.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the value for key. Expired entries count as misses and are
// removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Put stores value under key with the default TTL.
func (c *Cache[V]) Put(key string, value V) {
	c.PutTTL(key, value, c.ttl)
}

// PutTTL stores value under key with a specific TTL. A non-positive ttl
// falls back to the default.
func (c *Cache[V]) PutTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}

	now := c.now()
	el := c.order.PushBack(&entry[V]{
		key:       key,
		value:     value,
		expiresAt: now.Add(ttl),
	})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		c.remove(c.order.Front())
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry and resets counters.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	c.hits, c.misses = 0, 0
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache[V]) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitRate()
}

// Stats returns cache counters.
func (c *Cache[V]) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Entries: c.order.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.hitRate(),
	}
}

func (c *Cache[V]) hitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache[V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[V])
	delete(c.items, e.key)
}
