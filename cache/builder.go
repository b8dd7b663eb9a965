package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Builder assembles a namespace cache from the attributes of a cache
// element. The physical eviction algorithms are deliberately minimal; the
// engine only guarantees the wiring of a cache into its namespace.
type Builder struct {
	id            string
	impl          string
	eviction      string
	size          int
	flushInterval time.Duration
	readOnly      bool
	blocking      bool
	properties    map[string]string
}

// NewBuilder starts a builder for the given namespace.
func NewBuilder(id string) *Builder {
	return &Builder{id: id, impl: "PERPETUAL", eviction: "LRU"}
}

// Implementation selects the storage alias (PERPETUAL is the only built-in).
func (b *Builder) Implementation(alias string) *Builder {
	if alias != "" {
		b.impl = alias
	}
	return b
}

// Eviction selects the eviction decorator alias: LRU or FIFO.
func (b *Builder) Eviction(alias string) *Builder {
	if alias != "" {
		b.eviction = alias
	}
	return b
}

// Size bounds the cache to n entries; zero keeps the decorator default.
func (b *Builder) Size(n int) *Builder {
	b.size = n
	return b
}

// FlushInterval schedules a full clear every d; zero disables it.
func (b *Builder) FlushInterval(d time.Duration) *Builder {
	b.flushInterval = d
	return b
}

// ReadOnly marks the cache as returning shared instances.
func (b *Builder) ReadOnly(ro bool) *Builder {
	b.readOnly = ro
	return b
}

// Blocking serializes concurrent loads of the same key.
func (b *Builder) Blocking(block bool) *Builder {
	b.blocking = block
	return b
}

// Properties attaches the raw property children for custom implementations.
func (b *Builder) Properties(props map[string]string) *Builder {
	b.properties = props
	return b
}

// Build assembles the decorator chain: storage, then eviction, then the
// scheduled flush wrapper.
func (b *Builder) Build() (Cache, error) {
	if strings.ToUpper(b.impl) != "PERPETUAL" {
		return nil, fmt.Errorf("cache %q: unknown implementation %q", b.id, b.impl)
	}
	var c Cache = NewPerpetual(b.id)
	switch strings.ToUpper(b.eviction) {
	case "LRU":
		c = NewLRU(c, b.size)
	case "FIFO":
		c = NewFIFO(c, b.size)
	default:
		return nil, fmt.Errorf("cache %q: unknown eviction %q", b.id, b.eviction)
	}
	if b.flushInterval > 0 {
		c = newScheduled(c, b.flushInterval)
	}
	if b.blocking {
		c = NewBlocking(c)
	}
	return c, nil
}

// scheduled clears the delegate when the flush interval has elapsed,
// checked lazily on access. lastClear is shared by every run-phase
// lookup, so it is guarded.
type scheduled struct {
	Cache
	interval time.Duration

	mu        sync.Mutex
	lastClear time.Time
}

func newScheduled(delegate Cache, interval time.Duration) *scheduled {
	return &scheduled{Cache: delegate, interval: interval, lastClear: time.Now()}
}

func (c *scheduled) flushIfDue() {
	c.mu.Lock()
	due := time.Since(c.lastClear) >= c.interval
	if due {
		c.lastClear = time.Now()
	}
	c.mu.Unlock()
	if due {
		c.Cache.Clear()
	}
}

func (c *scheduled) Get(key string) (any, bool) {
	c.flushIfDue()
	return c.Cache.Get(key)
}

func (c *scheduled) Put(key string, value any) {
	c.flushIfDue()
	c.Cache.Put(key, value)
}
