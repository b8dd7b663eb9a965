package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/sqlmapper/internal/ctxlog"
)

// Deferred is a resolver for an artifact that referenced something not yet
// registered. Resolve either completes the registration, returns an
// IncompleteError to be retried later, or fails hard.
type Deferred interface {
	Resolve() error
	Description() string
}

type pendingQueues struct {
	mu         sync.Mutex
	resultMaps []Deferred
	cacheRefs  []Deferred
	statements []Deferred
}

// DeferResultMap queues a result-map resolver for a later drain.
func (c *Configuration) DeferResultMap(d Deferred) {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	c.pending.resultMaps = append(c.pending.resultMaps, d)
}

// DeferCacheRef queues a cache-ref resolver for a later drain.
func (c *Configuration) DeferCacheRef(d Deferred) {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	c.pending.cacheRefs = append(c.pending.cacheRefs, d)
}

// DeferStatement queues a statement resolver for a later drain.
func (c *Configuration) DeferStatement(d Deferred) {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	c.pending.statements = append(c.pending.statements, d)
}

// DrainPending retries every queued resolver after a document finishes
// loading, in fixed order: result maps, then cache refs, then statements.
// A resolver that succeeds is removed, one that is still incomplete is
// re-queued, and any other failure aborts the load.
func (c *Configuration) DrainPending(ctx context.Context) error {
	if err := c.drainQueue(ctx, &c.pending.resultMaps); err != nil {
		return err
	}
	if err := c.drainQueue(ctx, &c.pending.cacheRefs); err != nil {
		return err
	}
	return c.drainQueue(ctx, &c.pending.statements)
}

func (c *Configuration) drainQueue(ctx context.Context, queue *[]Deferred) error {
	c.pending.mu.Lock()
	batch := *queue
	*queue = nil
	c.pending.mu.Unlock()

	log := ctxlog.FromContext(ctx)
	var requeue []Deferred
	for _, d := range batch {
		err := d.Resolve()
		switch {
		case err == nil:
			log.Debug("deferred artifact resolved", "artifact", d.Description())
		case IsIncomplete(err):
			log.Debug("deferred artifact still incomplete", "artifact", d.Description(), "reason", err)
			requeue = append(requeue, d)
		default:
			return err
		}
	}

	c.pending.mu.Lock()
	*queue = append(requeue, *queue...)
	c.pending.mu.Unlock()
	return nil
}

// PendingCount returns how many resolvers are still queued.
func (c *Configuration) PendingCount() int {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	return len(c.pending.resultMaps) + len(c.pending.cacheRefs) + len(c.pending.statements)
}

// CheckComplete fails when any resolver is still queued, naming every
// unresolved artifact. Loading never calls this on its own; dangling
// references are tolerated until the caller decides otherwise.
func (c *Configuration) CheckComplete() error {
	c.pending.mu.Lock()
	defer c.pending.mu.Unlock()
	var missing []string
	for _, q := range [][]Deferred{c.pending.resultMaps, c.pending.cacheRefs, c.pending.statements} {
		for _, d := range q {
			missing = append(missing, d.Description())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &IncompleteError{Missing: strings.Join(missing, ", ")}
}
