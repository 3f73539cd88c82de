package grpccontext

import (
	"sync"
)

// Executor property bits. The zero options value is a valid (if unusual)
// handle that permits inline execution from Dispatch and Execute.
const (
	// optBlockingNever forbids Execute from running work inline on the
	// worker; everything is posted.
	optBlockingNever uint32 = 1 << iota
	// optRelationshipContinuation marks posted work as a continuation of the
	// submitting task rather than an independent fork. Informational: the
	// single-worker scheduler orders both identically.
	optRelationshipContinuation
	// optOutstandingWorkTracked marks handles that hold a unit of
	// outstanding work on behalf of their owner.
	optOutstandingWorkTracked

	optDefault = optBlockingNever
)

// Executor is a cheap value handle onto a Context: a pointer, an operation
// pool, and property bits. Copies are free and interchangeable; handles
// compare equal with == exactly when context, pool, properties and tracked
// work acquisition all match.
type Executor struct {
	ctx   *Context
	pool  *sync.Pool
	opts  uint32
	guard *WorkGuard
}

// Context returns the underlying execution context.
func (e Executor) Context() *Context { return e.ctx }

// OperationPool returns the pool operations are allocated from, or nil for
// the default (which the worker diverts to the context arena).
func (e Executor) OperationPool() *sync.Pool { return e.pool }

// RunningInThisGoroutine forwards to the context.
func (e Executor) RunningInThisGoroutine() bool { return e.ctx.RunningInThisGoroutine() }

// BlockingNever reports the blocking-never property.
func (e Executor) BlockingNever() bool { return e.opts&optBlockingNever != 0 }

// RelationshipContinuation reports the relationship-continuation property.
func (e Executor) RelationshipContinuation() bool { return e.opts&optRelationshipContinuation != 0 }

// OutstandingWorkTracked reports the outstanding-work-tracked property.
func (e Executor) OutstandingWorkTracked() bool { return e.opts&optOutstandingWorkTracked != 0 }

// WithBlockingNever returns a handle with the blocking-never property set to
// v, on the same context.
func (e Executor) WithBlockingNever(v bool) Executor {
	e.opts = setOption(e.opts, optBlockingNever, v)
	return e
}

// WithRelationshipContinuation returns a handle with the
// relationship-continuation property set to v, on the same context.
func (e Executor) WithRelationshipContinuation(v bool) Executor {
	e.opts = setOption(e.opts, optRelationshipContinuation, v)
	return e
}

// WithOutstandingWorkTracked returns a handle with the
// outstanding-work-tracked property set to v. Turning the property on
// acquires one unit of outstanding work, keeping Run from returning while
// the handle is live; the handle and every copy of it share that single
// unit, released exactly once via Release. Turning the property off drops
// the association without releasing it.
func (e Executor) WithOutstandingWorkTracked(v bool) Executor {
	if v == e.OutstandingWorkTracked() {
		return e
	}
	e.opts = setOption(e.opts, optOutstandingWorkTracked, v)
	if v {
		e.guard = NewWorkGuard(e.ctx)
	} else {
		e.guard = nil
	}
	return e
}

// Release releases the outstanding work held by a work-tracked handle.
// Idempotent across the handle and all its copies; a no-op for untracked
// handles.
func (e Executor) Release() {
	if e.guard != nil {
		e.guard.Done()
	}
}

// WithOperationPool returns a handle allocating operations from pool, on the
// same context. A nil pool restores the default allocator.
func (e Executor) WithOperationPool(pool *sync.Pool) Executor {
	e.pool = pool
	return e
}

// Dispatch runs f inline when called on the worker of a handle that permits
// blocking, and posts it otherwise.
func (e Executor) Dispatch(f func()) {
	if !e.BlockingNever() && e.ctx.RunningInThisGoroutine() {
		f()
		return
	}
	e.Post(f)
}

// Post enqueues f to run on the worker. Never runs f inline.
func (e Executor) Post(f func()) {
	op := allocOperation(e.ctx, e.pool)
	op.onComplete = completePosted
	op.fn = f
	e.ctx.WorkStarted()
	e.ctx.addLocalOrRemoteOperation(op)
}

// Defer is Post; the single-worker scheduler does not distinguish deferred
// continuations from ordinary posts.
func (e Executor) Defer(f func()) { e.Post(f) }

// Execute runs f according to the handle's blocking property: inline when
// permitted and on the worker, posted otherwise.
func (e Executor) Execute(f func()) {
	if e.BlockingNever() {
		e.Post(f)
		return
	}
	e.Dispatch(f)
}

// Schedule returns a sender that completes on the worker.
func (e Executor) Schedule() ScheduleSender {
	return ScheduleSender{e: e}
}

func setOption(opts, bit uint32, v bool) uint32 {
	if v {
		return opts | bit
	}
	return opts &^ bit
}

// ScheduleSender is a minimal sender over an executor: Start enqueues a
// nullary operation, and the continuation is invoked on the worker with a
// nil error when it runs. If the context is torn down first, the
// continuation is instead invoked with ErrContextStopped from Close.
type ScheduleSender struct {
	e Executor
}

// Start initiates the sender. f is called exactly once.
func (s ScheduleSender) Start(f func(error)) {
	op := allocOperation(s.e.ctx, s.e.pool)
	op.onComplete = completeSchedule
	op.fnErr = f
	s.e.ctx.WorkStarted()
	s.e.ctx.addLocalOrRemoteOperation(op)
}
