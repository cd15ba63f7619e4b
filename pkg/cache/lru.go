package cache

import (
	"sync"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

type node[V any] struct {
	key        string
	value      V
	prev, next *node[V]
}

// LRU evicts the least recently used entry once capacity is exceeded.
// Entries form a ring through head; head.next is the most recent.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	index    map[string]*node[V]
	head     node[V]

	stats   *Statistics
	metrics *cacheMetrics
	onEvict func(string, V)
}

func (c *LRU[V]) unlink(n *node[V]) {
	n.prev.next, n.next.prev = n.next, n.prev
}

func (c *LRU[V]) pushFront(n *node[V]) {
	n.prev, n.next = &c.head, c.head.next
	c.head.next.prev = n
	c.head.next = n
}

// Get returns the value stored at key and marks it most recently used
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.index[key]
	c.stats.lookup(ok)
	c.metrics.lookup(ok)
	if !ok {
		var zero V
		return zero, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.value, true
}

// Set stores value at key. It reports whether a new entry was created.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "cache", "Set", "key cannot be empty")
	}

	c.mu.Lock()
	c.stats.sets.Add(1)
	if n, ok := c.index[key]; ok {
		n.value = value
		c.unlink(n)
		c.pushFront(n)
		c.mu.Unlock()
		return false, nil
	}

	n := &node[V]{key: key, value: value}
	c.index[key] = n
	c.pushFront(n)

	var evicted []*node[V]
	for len(c.index) > c.capacity {
		last := c.head.prev
		c.unlink(last)
		delete(c.index, last.key)
		evicted = append(evicted, last)
	}
	c.stats.evictions.Add(int64(len(evicted)))
	c.metrics.evicted(len(evicted))
	c.sized()
	c.mu.Unlock()

	c.notify(evicted)
	return true, nil
}

// Delete removes key and reports whether it was present
func (c *LRU[V]) Delete(key string) (bool, error) {
	if key == "" {
		return false, errors.WrapInvalid(errors.ErrInvalidData, "cache", "Delete", "key cannot be empty")
	}

	c.mu.Lock()
	n, ok := c.index[key]
	if ok {
		c.unlink(n)
		delete(c.index, key)
		c.stats.deletes.Add(1)
		c.sized()
	}
	c.mu.Unlock()

	if ok {
		c.notify([]*node[V]{n})
	}
	return ok, nil
}

// Clear empties the cache
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	var dropped []*node[V]
	if c.onEvict != nil {
		for n := c.head.next; n != &c.head; n = n.next {
			dropped = append(dropped, n)
		}
	}
	clear(c.index)
	c.head.prev, c.head.next = &c.head, &c.head
	c.sized()
	c.mu.Unlock()

	c.notify(dropped)
}

// Size returns the number of entries
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Keys lists keys from most to least recently used
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index))
	for n := c.head.next; n != &c.head; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

func (c *LRU[V]) Stats() *Statistics { return c.stats }

func (c *LRU[V]) sized() {
	c.stats.resize(len(c.index))
	c.metrics.resize(len(c.index))
}

func (c *LRU[V]) notify(nodes []*node[V]) {
	if c.onEvict == nil {
		return
	}
	for _, n := range nodes {
		c.onEvict(n.key, n.value)
	}
}
