// Package cache provides a byte-bounded LRU cache for decoded page images.
package cache

import (
	"container/list"
	"strings"
	"sync"
)

// LRU evicts least recently used entries once the summed entry sizes exceed
// the capacity. An entry larger than the capacity is not stored.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int64
	bytes    int64
	ll       *list.List
	entries  map[string]*list.Element
}

type entry[V any] struct {
	key   string
	value V
	size  int64
}

// New returns an empty cache holding at most capacity bytes.
func New[V any](capacity int64) *LRU[V] {
	return &LRU[V]{
		capacity: capacity,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key with the given size and evicts as needed.
// It reports whether the value was stored.
func (c *LRU[V]) Put(key string, value V, size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
	if size > c.capacity {
		return false
	}

	c.entries[key] = c.ll.PushFront(&entry[V]{key: key, value: value, size: size})
	c.bytes += size
	for c.bytes > c.capacity {
		c.removeElement(c.ll.Back())
	}
	return true
}

// Remove drops key.
func (c *LRU[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// RemovePrefix drops every key starting with prefix and returns the count.
func (c *LRU[V]) RemovePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			n++
		}
	}
	return n
}

// Clear drops everything.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.entries = make(map[string]*list.Element)
	c.bytes = 0
}

// Bytes is the summed size of the cached entries.
func (c *LRU[V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len is the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[V]) Capacity() int64 { return c.capacity }

func (c *LRU[V]) removeElement(el *list.Element) {
	e := c.ll.Remove(el).(*entry[V])
	delete(c.entries, e.key)
	c.bytes -= e.size
}
