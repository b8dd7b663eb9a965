// Package cache provides the per-namespace statement caches and the
// builder that assembles a storage implementation with its eviction and
// synchronization decorators from a cache element's attributes.
package cache

import (
	"container/list"
	"sync"
)

// Cache is the contract every namespace cache satisfies. Implementations
// returned by Builder.Build are safe for concurrent use.
type Cache interface {
	// ID is the owning namespace.
	ID() string
	Put(key string, value any)
	Get(key string) (any, bool)
	Remove(key string)
	Clear()
	Size() int
}

// Perpetual is the base storage: a plain map that never evicts.
type Perpetual struct {
	id    string
	mu    sync.RWMutex
	items map[string]any
}

// NewPerpetual returns an empty Perpetual cache for the given namespace.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, items: make(map[string]any)}
}

func (c *Perpetual) ID() string { return c.id }

func (c *Perpetual) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *Perpetual) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *Perpetual) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Perpetual) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]any)
}

func (c *Perpetual) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// evicting decorates a delegate with a bounded key list; the evict hook
// picks the victim. Shared by the LRU and FIFO decorators.
type evicting struct {
	Cache
	mu      sync.Mutex
	limit   int
	keys    *list.List
	byKey   map[string]*list.Element
	onTouch func(e *evicting, el *list.Element)
}

func newEvicting(delegate Cache, limit int, onTouch func(*evicting, *list.Element)) *evicting {
	if limit <= 0 {
		limit = 1024
	}
	return &evicting{
		Cache:   delegate,
		limit:   limit,
		keys:    list.New(),
		byKey:   make(map[string]*list.Element),
		onTouch: onTouch,
	}
}

func (c *evicting) Put(key string, value any) {
	c.mu.Lock()
	if el, ok := c.byKey[key]; ok {
		c.keys.MoveToBack(el)
	} else {
		c.byKey[key] = c.keys.PushBack(key)
		if c.keys.Len() > c.limit {
			oldest := c.keys.Front()
			victim := oldest.Value.(string)
			c.keys.Remove(oldest)
			delete(c.byKey, victim)
			c.Cache.Remove(victim)
		}
	}
	c.mu.Unlock()
	c.Cache.Put(key, value)
}

func (c *evicting) Get(key string) (any, bool) {
	c.mu.Lock()
	if el, ok := c.byKey[key]; ok && c.onTouch != nil {
		c.onTouch(c, el)
	}
	c.mu.Unlock()
	return c.Cache.Get(key)
}

func (c *evicting) Remove(key string) {
	c.mu.Lock()
	if el, ok := c.byKey[key]; ok {
		c.keys.Remove(el)
		delete(c.byKey, key)
	}
	c.mu.Unlock()
	c.Cache.Remove(key)
}

func (c *evicting) Clear() {
	c.mu.Lock()
	c.keys.Init()
	c.byKey = make(map[string]*list.Element)
	c.mu.Unlock()
	c.Cache.Clear()
}

// NewLRU bounds delegate to limit entries, evicting the least recently
// used key.
func NewLRU(delegate Cache, limit int) Cache {
	return newEvicting(delegate, limit, func(e *evicting, el *list.Element) {
		e.keys.MoveToBack(el)
	})
}

// NewFIFO bounds delegate to limit entries, evicting the oldest key.
func NewFIFO(delegate Cache, limit int) Cache {
	return newEvicting(delegate, limit, nil)
}

// blockingCache serializes loads of the same key: a Get miss leaves the
// key held, so concurrent readers wait for the first one to Put the value
// (or Remove the key) instead of all running the query.
type blockingCache struct {
	Cache
	mu      sync.Mutex
	latches map[string]*keyLatch
}

// keyLatch is the per-key gate. held records whether a missed Get left it
// locked, so unpaired Put/Remove calls release nothing.
type keyLatch struct {
	mu   sync.Mutex
	held bool
}

// NewBlocking wraps delegate with per-key load serialization. A Get miss
// keeps the key held until a Put publishes the value or a Remove abandons
// the load; Put and Remove on a key that is not held are plain
// pass-throughs.
func NewBlocking(delegate Cache) Cache {
	return &blockingCache{Cache: delegate, latches: make(map[string]*keyLatch)}
}

func (c *blockingCache) latch(key string) *keyLatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.latches[key]
	if !ok {
		l = &keyLatch{}
		c.latches[key] = l
	}
	return l
}

// release unlocks the key's latch when a missed Get left it held.
func (c *blockingCache) release(key string) {
	c.mu.Lock()
	l, ok := c.latches[key]
	if ok && l.held {
		l.held = false
		c.mu.Unlock()
		l.mu.Unlock()
		return
	}
	c.mu.Unlock()
}

func (c *blockingCache) Get(key string) (any, bool) {
	l := c.latch(key)
	l.mu.Lock()
	v, ok := c.Cache.Get(key)
	if ok {
		l.mu.Unlock()
		return v, ok
	}
	c.mu.Lock()
	l.held = true
	c.mu.Unlock()
	// The caller holds the key until Put or Remove.
	return v, ok
}

func (c *blockingCache) Put(key string, value any) {
	c.Cache.Put(key, value)
	c.release(key)
}

func (c *blockingCache) Remove(key string) {
	c.Cache.Remove(key)
	c.release(key)
}
