// Package cache implements the bounded result cache.
//
// Eviction is strictly FIFO by insertion. Hits never refresh an entry; only a
// Put under an existing key moves it to the newest position.
package cache

import (
	"fmt"

	"github.com/treeleaves30760/PyMD/internal/env"
	"github.com/treeleaves30760/PyMD/internal/ir"
)

// DefaultCapacity is the number of entries kept before a trim.
const DefaultCapacity = 100

// MinCapacity is the smallest capacity for which a trim leaves at most
// capacity entries.
const MinCapacity = 2

// Entry is one memoized execution: the result and the detached post-run
// state that a hit applies to the environment.
type Entry struct {
	Key    string
	Result ir.ExecutionResult
	State  env.State
}

// Cache is a key -> Entry map with FIFO eviction. Not safe for concurrent use.
type Cache struct {
	capacity int
	entries  map[string]*Entry
	order    []string // insertion order, oldest first
}

// New creates a cache. Capacities below MinCapacity are rejected.
func New(capacity int) (*Cache, error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("cache: capacity %d is below minimum %d", capacity, MinCapacity)
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Entry),
	}, nil
}

// Capacity returns N.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Get returns the entry for key. It does not affect eviction order.
func (c *Cache) Get(key string) (*Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Has reports whether key is cached.
func (c *Cache) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Put inserts or replaces the entry for e.Key as the newest entry and trims.
// It returns the evicted keys, oldest first.
func (c *Cache) Put(e *Entry) []string {
	if _, exists := c.entries[e.Key]; exists {
		c.removeFromOrder(e.Key)
	}
	c.entries[e.Key] = e
	c.order = append(c.order, e.Key)
	return c.trim()
}

// retain is how many entries survive a trim: the newest entry plus the
// ceil(N/2) inserted just before it.
func (c *Cache) retain() int {
	return (c.capacity+1)/2 + 1
}

func (c *Cache) trim() []string {
	if len(c.order) <= c.capacity {
		return nil
	}
	n := len(c.order) - c.retain()
	evicted := make([]string, n)
	copy(evicted, c.order[:n])
	for _, key := range evicted {
		delete(c.entries, key)
	}
	c.order = append(c.order[:0], c.order[n:]...)
	return evicted
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Keys returns cached keys in insertion order, oldest first.
func (c *Cache) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.entries)
	c.order = c.order[:0]
}
