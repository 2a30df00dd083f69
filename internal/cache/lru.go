package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/octoterra/resource"
)

// LRU is a least-recently-used cache bounded by the summed cost of its
// entries. It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[K]*list.Element
	order    *list.List
	cost     func(V) int64
	rc       *resource.Controller
	onEvict  func(K, V)

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewLRU creates a cache holding at most capacity cost units. cost may be
// nil, in which case every entry costs 1. If rc is non-nil every entry's
// cost is also reserved there, and entries the controller refuses are not
// cached.
func NewLRU[K comparable, V any](capacity int64, cost func(V) int64, rc *resource.Controller) *LRU[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		cost:     cost,
		rc:       rc,
	}
}

// OnEvict registers fn to run for entries dropped to make room. It is not
// called for Remove, Invalidate or Purge. fn runs with the cache locked and
// must not call back into it.
func (c *LRU[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set stores value under key. It reports false when the value was not
// cached, either because it exceeds the capacity or because the resource
// controller had no memory left.
func (c *LRU[K, V]) Set(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.cost(value)
	if n > c.capacity {
		if el, ok := c.items[key]; ok {
			c.remove(el)
		}
		return false
	}

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	for c.size+n > c.capacity {
		c.evictOldest()
	}
	if c.rc != nil && !c.rc.TryAcquireMemory(n) {
		return false
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, cost: n})
	c.size += n
	return true
}

// Remove drops key. It reports whether key was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

// Invalidate drops every entry whose key satisfies pred and returns how
// many were dropped.
func (c *LRU[K, V]) Invalidate(pred func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []*list.Element
	for k, el := range c.items {
		if pred(k) {
			drop = append(drop, el)
		}
	}
	for _, el := range drop {
		c.remove(el)
	}
	return len(drop)
}

// Purge drops every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.Len() > 0 {
		c.remove(c.order.Back())
	}
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size returns the summed cost of all entries.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns the hit and miss counters.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	ent := el.Value.(*entry[K, V])
	c.remove(el)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}

func (c *LRU[K, V]) remove(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.order.Remove(el)
	delete(c.items, ent.key)
	c.size -= ent.cost
	c.rc.ReleaseMemory(ent.cost)
}
