package grpccontext

import (
	"sync"
)

// invokeHandler selects between the normal completion path and the
// shutdown-drain path, where the record is released but the user handler is
// never called.
type invokeHandler uint8

const (
	invokeHandlerYes invokeHandler = iota
	invokeHandlerNo
)

// completionFunc is the per-variant completion function. It owns the full
// life cycle of the record: move the handler off the record, release the
// record, then call the handler when invoke says so. The schedule-sender
// variant also calls it on the drain path, with ErrContextStopped.
type completionFunc func(c *Context, op *operation, ok bool, invoke invokeHandler)

// operation is the unit of scheduled work. Its address doubles as the
// completion-queue tag, and the embedded next pointer lets the work queues
// transport it without further allocation. Exactly one of the handler slots
// is populated, matching onComplete.
type operation struct {
	next       *operation
	onComplete completionFunc
	fn         func()      // posted work
	fnOK       func(bool)  // completion-queue notifications
	fnErr      func(error) // schedule sender
	pool       *sync.Pool
	fromArena  bool
}

func (op *operation) complete(c *Context, ok bool, invoke invokeHandler) {
	op.onComplete(c, op, ok, invoke)
}

// operationPool recycles operation records across contexts. Allocation
// requests that don't name a pool come here, unless the worker-arena
// short-circuit applies.
var operationPool = sync.Pool{New: func() any { return new(operation) }}

// operationArena is the worker-owned free list backing the default-pool
// short-circuit: records allocated by the worker for the worker skip the
// shared pool entirely. Unsynchronised; only ever touched on the worker.
type operationArena struct {
	free      *operation
	allocated int
	capacity  int
}

func (a *operationArena) get() *operation {
	if op := a.free; op != nil {
		a.free = op.next
		op.next = nil
		op.fromArena = true
		return op
	}
	if a.allocated < a.capacity {
		a.allocated++
		return &operation{fromArena: true}
	}
	return nil
}

func (a *operationArena) put(op *operation) {
	op.next = a.free
	a.free = op
}

func (a *operationArena) release() {
	a.free = nil
	a.allocated = 0
}

// allocOperation returns a zeroed record. A nil pool selects the default
// allocator, which is diverted to the context's arena when the caller is the
// worker goroutine.
func allocOperation(c *Context, pool *sync.Pool) *operation {
	if pool == nil {
		if c.RunningInThisGoroutine() {
			if op := c.arena.get(); op != nil {
				return op
			}
		}
		pool = &operationPool
	}
	op := pool.Get().(*operation)
	op.pool = pool
	return op
}

// releaseOperation clears the record and returns it to its source. Handler
// references are dropped before reuse so recycled records never pin user
// state.
func releaseOperation(c *Context, op *operation) {
	fromArena := op.fromArena
	pool := op.pool
	*op = operation{}
	if fromArena {
		c.arena.put(op)
	} else {
		pool.Put(op)
	}
}

// completePosted finishes a nullary work item. The handler is moved off the
// record and the record freed before the upcall, because the handler may
// immediately allocate from the same arena or pool.
func completePosted(c *Context, op *operation, _ bool, invoke invokeHandler) {
	fn := op.fn
	releaseOperation(c, op)
	// Deferred so a panicking handler still balances the work counter on
	// its way out through Run.
	defer c.WorkFinished()
	if invoke == invokeHandlerYes {
		fn()
	}
}

// completeNotify finishes a completion-queue notification, forwarding the
// event's ok.
func completeNotify(c *Context, op *operation, ok bool, invoke invokeHandler) {
	fn := op.fnOK
	releaseOperation(c, op)
	defer c.WorkFinished()
	if invoke == invokeHandlerYes {
		fn(ok)
	}
}

// completeSchedule finishes a schedule-sender operation. Unlike the other
// variants the continuation is invoked on the shutdown-drain path too, with
// ErrContextStopped, so senders never silently vanish.
func completeSchedule(c *Context, op *operation, _ bool, invoke invokeHandler) {
	fn := op.fnErr
	releaseOperation(c, op)
	defer c.WorkFinished()
	if invoke == invokeHandlerYes {
		fn(nil)
	} else {
		fn(ErrContextStopped)
	}
}
