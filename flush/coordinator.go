// Package flush implements the single-flight batch flush coordinator
// (C8): events appended to an event.Log accumulate in its tail buffer,
// and a single drain loop durably writes them in batches, restoring
// already-written segments and re-queuing the batch if any write in it
// fails.
package flush

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/evalgo-chronicle/chronicle/event"
)

// Coordinator drives the append/flush/rollback cycle over one event.Log.
// Only one drain loop runs at a time; concurrent Append calls from
// multiple goroutines are safe.
type Coordinator struct {
	log *event.Log

	mu      sync.Mutex
	current *Future // the in-flight drain cycle, nil when idle
	futures map[string]*Future

	inFlight int32 // instrumentation: observed writeAtomic concurrency
}

// New creates a Coordinator over log.
func New(log *event.Log) *Coordinator {
	return &Coordinator{
		log:     log,
		futures: make(map[string]*Future),
	}
}

// Append pushes events onto the log's tail buffer and returns one future
// per event, each resolved once that event's batch is durable (or
// rejected with the error that rolled the batch back). A drain loop is
// started if none is currently running.
func (c *Coordinator) Append(events ...event.Event) []*Future {
	if len(events) == 0 {
		return nil
	}
	c.mu.Lock()
	c.log.Append(events...)
	futures := make([]*Future, len(events))
	for i, e := range events {
		f := newFuture()
		c.futures[e.ID] = f
		futures[i] = f
	}
	if c.current == nil {
		c.current = newFuture()
		go c.drain(context.Background())
	}
	c.mu.Unlock()
	return futures
}

// Flush returns the currently in-flight drain cycle's completion, or a
// resolved no-op if nothing is in flight. Because Append always starts a
// drain loop that keeps going until the tail buffer is empty, waiting on
// the in-flight cycle is enough to observe every event appended strictly
// before this call.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	if cur == nil && len(c.log.PendingSnapshot()) > 0 {
		cur = newFuture()
		c.current = cur
		go c.drain(context.Background())
	}
	c.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Wait(ctx)
}

// InFlight reports how many writeAtomic calls this coordinator currently
// has outstanding; the single-flight invariant requires this never
// exceeds 1.
func (c *Coordinator) InFlight() int32 {
	return atomic.LoadInt32(&c.inFlight)
}

// drain runs batches until the tail buffer is empty, matching "on success,
// resolve those futures; if pendingEvents is non-empty, schedule another
// flush" — done here as a loop within one goroutine rather than a fresh
// scheduling round-trip per batch. A failed batch stops the loop rather
// than retrying the same failure forever; the failed events remain queued
// for the next Append or Flush call to pick back up.
func (c *Coordinator) drain(ctx context.Context) {
	for {
		batch := c.log.Snapshot()
		if len(batch) == 0 {
			c.finishCycle(nil)
			return
		}
		if err := c.runBatch(ctx, batch); err != nil {
			c.finishCycle(err)
			return
		}
	}
}

func (c *Coordinator) finishCycle(err error) {
	c.mu.Lock()
	done := c.current
	c.current = nil
	c.mu.Unlock()
	done.resolve(err)
}

func (c *Coordinator) runBatch(ctx context.Context, batch []event.Event) error {
	atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)

	grouped := groupByNamespace(batch)
	namespaces := make([]string, 0, len(grouped))
	for ns := range grouped {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var written []event.WrittenSegment
	for _, ns := range namespaces {
		w, err := c.log.WriteSegment(ctx, ns, grouped[ns])
		if err != nil {
			for i := len(written) - 1; i >= 0; i-- {
				_ = c.log.Restore(ctx, written[i])
			}
			c.log.Requeue(batch)
			c.settleFutures(batch, err)
			return err
		}
		written = append(written, w)
	}
	c.settleFutures(batch, nil)
	return nil
}

func (c *Coordinator) settleFutures(batch []event.Event, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range batch {
		if f, ok := c.futures[e.ID]; ok {
			f.resolve(err)
			delete(c.futures, e.ID)
		}
	}
}

func groupByNamespace(events []event.Event) map[string][]event.Event {
	grouped := make(map[string][]event.Event)
	for _, e := range events {
		ns := e.Target
		if i := strings.IndexByte(e.Target, '/'); i >= 0 {
			ns = e.Target[:i]
		}
		grouped[ns] = append(grouped[ns], e)
	}
	return grouped
}
