// Copyright 2024 The kale authors. All rights reserved.

// Package rescache implements the resource cache and handle model
// generational handles, a path-to-handle index so repeated
// loads of the same path share one entry, reference counting, and a
// pending-release list drained on the main thread.
//
// A Cache is generic over its resource type T. This gives the
// "reject mismatched Get<T>" requirement for free through Go's type
// system instead of a runtime type-id tag, which is the idiomatic
// rendering of the Design Notes' "tagged enum of resource kinds"
// alternative for a statically typed target.
package rescache

import (
	"sync"

	"github.com/kaleforge/rgcore/internal/bitm"
)

// Handle is a generational reference into a Cache[T]. The zero value
// is always invalid.
type Handle[T any] struct {
	id         uint64
	generation uint32
}

// IsValid reports whether h was returned by a Register call and has
// not since been invalidated by the entry being freed and reused.
func (h Handle[T]) IsValid() bool { return h.id != 0 }

type entry[T any] struct {
	value      T
	path       string
	generation uint32
	refCount   int32
	ready      bool
}

// Cache is a process-scoped, reference-counted store of resources of
// type T, indexed both by handle and by an optional path.
type Cache[T any] struct {
	mu        sync.RWMutex
	slots     []entry[T]
	freeMap   bitm.Bitm[uint32]
	pathIndex map[string]uint64 // path -> 1-based id
	pending   []uint64
}

// NewCache creates an empty Cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{pathIndex: make(map[string]uint64)}
}

// Register inserts value under the optional path and returns its
// handle. If path is non-empty and already registered, the existing
// handle is returned unchanged (repeat loads of the same path observe
// equal handle ids, per the Testable Properties). ready marks whether
// IsReady should report true immediately.
func (c *Cache[T]) Register(path string, value T, ready bool) Handle[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path != "" {
		if id, ok := c.pathIndex[path]; ok {
			return Handle[T]{id: id, generation: c.slots[id-1].generation}
		}
	}

	idx, ok := c.freeMap.Search()
	if !ok {
		idx = c.freeMap.Grow(1)
		for len(c.slots) < c.freeMap.Len() {
			c.slots = append(c.slots, entry[T]{})
		}
	}
	c.freeMap.Set(idx)

	gen := c.slots[idx].generation + 1
	c.slots[idx] = entry[T]{value: value, path: path, generation: gen, ready: ready}

	id := uint64(idx) + 1
	if path != "" {
		c.pathIndex[path] = id
	}
	return Handle[T]{id: id, generation: gen}
}

func (c *Cache[T]) find(h Handle[T]) (int, bool) {
	if h.id == 0 || int(h.id) > len(c.slots) {
		return 0, false
	}
	idx := int(h.id) - 1
	if c.slots[idx].generation != h.generation || !c.freeMap.IsSet(idx) {
		return 0, false
	}
	return idx, true
}

// Lookup returns the handle previously registered for path, if any.
func (c *Cache[T]) Lookup(path string) (Handle[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.pathIndex[path]
	if !ok {
		return Handle[T]{}, false
	}
	return Handle[T]{id: id, generation: c.slots[id-1].generation}, true
}

// Get returns the value stored at h. It fails if h's slot never existed,
// has been freed by ProcessPendingReleases, or was reused under a newer
// generation.
func (c *Cache[T]) Get(h Handle[T]) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.find(h)
	if !ok {
		var zero T
		return zero, false
	}
	return c.slots[idx].value, true
}

// IsReady reports whether h resolves to an existing, ready entry.
func (c *Cache[T]) IsReady(h Handle[T]) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.find(h)
	return ok && c.slots[idx].ready
}

// MarkReady flags h's entry as ready (loading completed).
func (c *Cache[T]) MarkReady(h Handle[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.find(h); ok {
		c.slots[idx].ready = true
	}
}

// Retain increments h's reference count.
func (c *Cache[T]) Retain(h Handle[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.find(h); ok {
		c.slots[idx].refCount++
	}
}

// Release decrements h's reference count. Once it reaches zero, the
// entry is moved to the pending-release list; it is not actually freed
// until ProcessPendingReleases drains it.
func (c *Cache[T]) Release(h Handle[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.find(h)
	if !ok {
		return
	}
	c.slots[idx].refCount--
	if c.slots[idx].refCount <= 0 {
		c.pending = append(c.pending, h.id)
	}
}

// ProcessPendingReleases drains the pending-release list, invoking cb
// with each handle and a pointer to its value so the caller can
// release any underlying device resources before the slot is recycled.
// It must be called from the main thread.
func (c *Cache[T]) ProcessPendingReleases(cb func(h Handle[T], value *T)) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, id := range pending {
		c.mu.Lock()
		idx := int(id) - 1
		if idx < 0 || idx >= len(c.slots) || c.slots[idx].refCount > 0 {
			// Resurrected by a Retain after the release was queued.
			c.mu.Unlock()
			continue
		}
		gen := c.slots[idx].generation
		path := c.slots[idx].path
		c.mu.Unlock()

		if cb != nil {
			cb(Handle[T]{id: id, generation: gen}, &c.slots[idx].value)
		}

		c.mu.Lock()
		if c.slots[idx].generation == gen && c.slots[idx].refCount <= 0 {
			if path != "" {
				delete(c.pathIndex, path)
			}
			c.slots[idx] = entry[T]{generation: gen}
			c.freeMap.Unset(idx)
		}
		c.mu.Unlock()
	}
}
