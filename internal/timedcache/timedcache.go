// Package timedcache is a typed TTL cache on top of go-cache.
//
// Expiry is checked lazily on Get; a janitor goroutine also sweeps expired
// entries every cleanup interval. Writes to the same key are last-writer-wins.
package timedcache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache maps string keys to values of type V with a per-entry TTL.
type Cache[V any] struct {
	store *cache.Cache
}

// New creates a cache whose janitor runs every cleanupInterval.
// A non-positive interval disables the janitor.
func New[V any](defaultTTL, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{store: cache.New(defaultTTL, cleanupInterval)}
}

// Set stores value under key, replacing any previous entry. The entry
// expires ttl from now.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Get returns the value for key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, found := c.store.Get(key)
	if !found {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Remove deletes key.
func (c *Cache[V]) Remove(key string) {
	c.store.Delete(key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.store.Flush()
}

// Len returns the number of stored entries, expired ones included until the
// janitor removes them.
func (c *Cache[V]) Len() int {
	return c.store.ItemCount()
}

