package sqlfrag

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqlfrag/engine"
)

// handleIDCount is used to generate unique handle IDs.
var handleIDCount uint64

// handle owns one prepared statement. It is shared between a Cursor and the
// registry of the DB the statement was prepared on, but never points back
// at the Cursor so that an abandoned Cursor can be garbage collected.
type handle struct {
	id   uint64
	stmt engine.Stmt
	// failed is set when a step failed. Finalize then repeats the failure
	// status, which has already been reported.
	failed bool
}

// registry tracks the statements prepared on a DB.
//
// Cursors that opt in to deferred release carry a finalizer that queues
// their handle on pending. The finalizer runs on the runtime's finalizer
// goroutine and must not call into the engine, so pending handles are only
// finalized on the owner's next call to the DB.
//
// The mutex must be locked when accessing open or pending.
type registry struct {
	open    map[uint64]*handle
	pending []*handle
	mutex   sync.Mutex
}

func newRegistry() *registry {
	return &registry{open: map[uint64]*handle{}}
}

// add registers a freshly prepared statement.
func (r *registry) add(stmt engine.Stmt) *handle {
	h := &handle{id: atomic.AddUint64(&handleIDCount, 1), stmt: stmt}
	r.mutex.Lock()
	r.open[h.id] = h
	r.mutex.Unlock()
	return h
}

// release finalizes the statement of h unless that has already happened.
func (r *registry) release(h *handle) engine.Status {
	r.mutex.Lock()
	_, ok := r.open[h.id]
	delete(r.open, h.id)
	r.mutex.Unlock()
	if !ok {
		return engine.StatusOK
	}
	st := h.stmt.Finalize()
	if h.failed {
		return engine.StatusOK
	}
	return st
}

// enqueue schedules h for release. It is safe to call from a finalizer.
func (r *registry) enqueue(h *handle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.open[h.id]; ok {
		r.pending = append(r.pending, h)
	}
}

// takePending empties the queue of handles scheduled for release.
func (r *registry) takePending() []*handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	pending := r.pending
	r.pending = nil
	return pending
}

// takeAll returns every handle still open, in preparation order.
func (r *registry) takeAll() []*handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.pending = nil
	all := make([]*handle, 0, len(r.open))
	for _, h := range r.open {
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	return all
}

// arm sets a finalizer on c that schedules its handle for release once c
// is garbage collected.
func (r *registry) arm(c *Cursor) {
	runtime.SetFinalizer(c, func(c *Cursor) {
		r.enqueue(c.h)
	})
}

// disarm removes the finalizer set by arm, if any.
func (r *registry) disarm(c *Cursor) {
	runtime.SetFinalizer(c, nil)
}
