package unit

import (
	"container/list"
	"sync"
)

// lruCache is a thread-safe, capacity-bounded Least-Recently-Used cache. The
// onEvict hook runs under the cache lock for every entry pushed out by
// capacity or removed by Purge.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most-recently used
	onEvict  func(K, V)
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func newLRUCache[K comparable, V any](capacity int, onEvict func(K, V)) *lruCache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		onEvict:  onEvict,
	}
}

// Get returns the cached value and moves it to the front.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// PutIfAbsent stores value unless key is already present, in which case the
// stored value is returned with inserted=false.
func (c *lruCache[K, V]) PutIfAbsent(key K, value V) (stored V, inserted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*lruEntry[K, V]).value, false
	}
	if c.order.Len() >= c.capacity {
		c.evictLeastRecentLocked()
	}
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	return value, true
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge removes every entry, calling onEvict for each.
func (c *lruCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*lruEntry[K, V])
		if c.onEvict != nil {
			c.onEvict(entry.key, entry.value)
		}
	}
	c.order.Init()
	c.items = make(map[K]*list.Element, c.capacity)
}

// evictLeastRecentLocked removes the back element. Caller must hold c.mu.
func (c *lruCache[K, V]) evictLeastRecentLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*lruEntry[K, V])
	c.order.Remove(back)
	delete(c.items, entry.key)
	if c.onEvict != nil {
		c.onEvict(entry.key, entry.value)
	}
}
