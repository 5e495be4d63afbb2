// Package cache implements the per-class weak-valued identity cache: while
// any strong reference to a loaded object is held elsewhere, a second
// lookup by the same OID returns that same instance; once the last strong
// reference is dropped, the entry is free to be collected and a later
// lookup reloads from the backend.
//
// Grounded on spec §4.2's identity cache and §9's design note on weak
// references; implemented with the Go 1.24 standard library's `weak`
// package. No third-party weak-map library appears anywhere in the
// retrieval pack, and `weak.Pointer` is purpose-built for exactly this
// shape, so the standard library is used directly here — see DESIGN.md.
package cache

import (
	"sync"
	"weak"
)

// Cache is a weak-valued map keyed by OID. The zero value is not usable;
// construct with New.
type Cache[T any] struct {
	mu sync.Mutex
	m  map[string]weak.Pointer[T]
}

func New[T any]() *Cache[T] {
	return &Cache[T]{m: make(map[string]weak.Pointer[T])}
}

// Get returns the live instance for oid, if any strong reference to it
// still exists elsewhere.
func (c *Cache[T]) Get(oid string) (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wp, ok := c.m[oid]
	if !ok {
		return nil, false
	}
	v := wp.Value()
	if v == nil {
		delete(c.m, oid)
		return nil, false
	}
	return v, true
}

// Put installs v as the live instance for oid, replacing any previous
// weak entry.
func (c *Cache[T]) Put(oid string, v *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[oid] = weak.Make(v)
}

// Delete drops the cache entry for oid, if any. Called on remove() so a
// subsequent Get for the same OID does not resurrect a stale instance.
func (c *Cache[T]) Delete(oid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, oid)
}

// Sweep removes entries whose target has already been collected and
// returns the number removed. Callers are not required to call this —
// Get self-heals lazily — but a long-lived process with heavy churn may
// want to bound the map's bucket count between lookups.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for oid, wp := range c.m {
		if wp.Value() == nil {
			delete(c.m, oid)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently tracked, live or dead.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
