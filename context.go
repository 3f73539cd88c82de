package grpccontext

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Context multiplexes two event sources - locally posted work and
// completion-queue events - onto one cooperatively scheduled worker
// goroutine: whichever goroutine is inside Run, Poll or one of their
// variants. Producers on other goroutines enqueue through the remote queue
// and wake the worker by arming the work alarm, which surfaces as an ordinary
// completion-queue event.
//
// A Context may be stopped and reset repeatedly. Close is terminal: it shuts
// the completion queue down and drains the backlog without invoking user
// handlers.
type Context struct {
	// Prevent copying
	_ [0]func()

	cq       *CompletionQueue
	serverCQ *ServerCompletionQueue
	logger   *logiface.Logger[logiface.Event]

	workAlarm queueAlarm
	hasWork   atomic.Bool

	stopped     atomic.Bool
	outstanding atomic.Int64

	// Enforces the single-worker contract.
	running  atomic.Bool
	workerID atomic.Uint64

	// local is touched only by the worker; remote is MPSC.
	local           intrusiveQueue
	remote          atomicIntrusiveQueue
	processingLocal bool

	arena     operationArena
	closeOnce sync.Once

	// hasWorkOp never completes; its address is the work-alarm sentinel tag.
	hasWorkOp operation
}

// New creates a Context. With no options it owns a fresh CompletionQueue.
func New(opts ...Option) (*Context, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	c := &Context{
		cq:       cfg.completionQueue,
		serverCQ: cfg.serverCompletionQueue,
		logger:   cfg.logger,
	}
	if c.serverCQ != nil {
		c.cq = &c.serverCQ.CompletionQueue
	} else if c.cq == nil {
		c.cq = NewCompletionQueue()
	}
	c.arena.capacity = cfg.arenaCapacity
	// The worker is not running yet, which for producers is the same as
	// asleep: the first remote post must arm the work alarm.
	c.remote.markInactive()
	return c, nil
}

// CompletionQueue returns the owned completion queue. Other goroutines may
// submit tagged events through it at any time before Close.
func (c *Context) CompletionQueue() *CompletionQueue { return c.cq }

// ServerCompletionQueue returns the server completion queue the Context was
// built with, or nil.
func (c *Context) ServerCompletionQueue() *ServerCompletionQueue { return c.serverCQ }

// Executor returns an executor handle bound to c, with the default
// properties (blocking-never set).
func (c *Context) Executor() Executor {
	return Executor{ctx: c, opts: optDefault}
}

// Stop requests the worker to stop. Pending completions are retained, not
// cancelled; no user handler runs again until Reset. Idempotent. Safe from
// any goroutine: the first call arms the work alarm so a sleeping worker
// wakes promptly.
func (c *Context) Stop() {
	if !c.stopped.Swap(true) {
		c.triggerWorkAlarm()
	}
}

// Reset clears the stopped flag, permitting a subsequent Run or Poll to
// process work again. Run does this itself on entry.
func (c *Context) Reset() { c.stopped.Store(false) }

// Stopped reports whether Stop has been called (or the outstanding-work
// count hit zero) since the last Reset.
func (c *Context) Stopped() bool { return c.stopped.Load() }

// WorkStarted adds one unit of outstanding work. Run returns naturally only
// once the count drops back to zero.
func (c *Context) WorkStarted() { c.outstanding.Add(1) }

// WorkFinished removes one unit of outstanding work; the 1 -> 0 transition
// stops the context.
func (c *Context) WorkFinished() {
	if c.outstanding.Add(-1) == 0 {
		c.Stop()
	}
}

// RunningInThisGoroutine reports whether the calling goroutine is the
// context's worker.
func (c *Context) RunningInThisGoroutine() bool {
	id := c.workerID.Load()
	return id != 0 && id == goroutineID()
}

// triggerWorkAlarm arms the work alarm exactly once per wake-up cycle: the
// false -> true transition of hasWork submits an immediate completion-queue
// event carrying the sentinel tag. The worker clears hasWork when it consumes
// the event.
func (c *Context) triggerWorkAlarm() {
	if c.hasWork.CompareAndSwap(false, true) {
		c.workAlarm.Set(c.cq, DistantPast, Tag(&c.hasWorkOp))
	}
}

// addLocalOperation pushes op onto the local FIFO. Worker only.
func (c *Context) addLocalOperation(op *operation) {
	c.local.pushBack(op)
	if !c.processingLocal {
		c.triggerWorkAlarm()
	}
}

// addRemoteOperation pushes op onto the remote queue from any goroutine,
// waking the worker when the push transitioned the queue out of the inactive
// state.
func (c *Context) addRemoteOperation(op *operation) {
	if c.remote.enqueue(op) {
		c.triggerWorkAlarm()
	}
}

// addLocalOrRemoteOperation dispatches on the calling goroutine's identity.
func (c *Context) addLocalOrRemoteOperation(op *operation) {
	if c.RunningInThisGoroutine() {
		c.addLocalOperation(op)
	} else {
		c.addRemoteOperation(op)
	}
}

// Initiate allocates an operation, hands its tag to start, and arranges for
// f to be called on the worker with the ok of the completion event the tag
// eventually produces. This is the binding point for anything that can
// submit a tagged event: gRPC stream steps, custom I/O, test drivers.
//
// The started operation counts as outstanding work until it completes.
func (c *Context) Initiate(start func(q *CompletionQueue, tag Tag), f func(ok bool)) {
	op := allocOperation(c, nil)
	op.onComplete = completeNotify
	op.fnOK = f
	c.WorkStarted()
	start(c.cq, Tag(op))
}

// Run enters the worker loop: drain local work, then block on the completion
// queue for one event, repeating until Stop is called or the outstanding
// work count reaches zero. Returns true iff at least one handler-bearing
// operation or event was processed. Returns immediately when there is no
// outstanding work. Not re-entrant; a second concurrent worker panics.
func (c *Context) Run() bool {
	handled, _ := c.runImpl(DistantFuture, nil, false, true)
	return handled
}

// Poll processes everything that is ready without blocking: the local queue,
// the remote queue, and any completion-queue events already available,
// stopping at the first would-block. Returns true iff anything was handled.
func (c *Context) Poll() bool {
	handled, _ := c.runImpl(DistantPast, nil, false, false)
	return handled
}

// RunUntil behaves like Run but hands deadline to every completion-queue
// wait. Returns true if it returned because of Stop or drained work, false
// if the deadline expired first.
func (c *Context) RunUntil(deadline time.Time) bool {
	_, timedOut := c.runImpl(deadline, nil, false, true)
	return !timedOut
}

// RunWhile behaves like Run but additionally stops once pred reports false.
// pred is evaluated on the worker between iterations. Returns true iff
// anything was handled.
func (c *Context) RunWhile(pred func() bool) bool {
	handled, _ := c.runImpl(DistantFuture, pred, false, true)
	return handled
}

// RunCompletionQueue processes completion-queue events only, skipping the
// work queues entirely. Integrations use it to let completions fire while
// posted work keeps running on a host event loop.
func (c *Context) RunCompletionQueue() bool {
	handled, _ := c.runImpl(DistantFuture, nil, true, true)
	return handled
}

// PollCompletionQueue is the non-blocking variant of RunCompletionQueue.
func (c *Context) PollCompletionQueue() bool {
	handled, _ := c.runImpl(DistantPast, nil, true, false)
	return handled
}

// runImpl is the shared worker engine. It claims the worker role, records
// the goroutine identity, and iterates: local queue first, then exactly one
// completion-queue wait per iteration.
func (c *Context) runImpl(deadline time.Time, pred func() bool, cqOnly, reset bool) (handled, timedOut bool) {
	if c.outstanding.Load() == 0 {
		return false, false
	}
	if !c.running.CompareAndSwap(false, true) {
		panic("grpccontext: a worker is already running on this Context")
	}
	if reset {
		c.Reset()
	}
	c.workerID.Store(goroutineID())

	defer func() {
		c.running.Store(false)
		if r := recover(); r != nil {
			// Leave the context stopped but otherwise valid, and let the
			// panic unwind to the caller of Run.
			c.stopped.Store(true)
			c.logger.Err().Any("panic", r).Log("grpccontext: handler panicked")
			panic(r)
		}
	}()

	for !c.stopped.Load() && c.outstanding.Load() > 0 && (pred == nil || pred()) {
		h, status := c.processOnce(deadline, cqOnly)
		if h {
			handled = true
		}
		if status == NextTimeout {
			return handled, true
		}
		if status == NextShutdown {
			return handled, false
		}
	}
	return handled, false
}

// processOnce performs one worker iteration: drain the local queue, absorb
// any remote backlog (marking the queue inactive when it is empty, so the
// producer that next fills it wakes us), then wait for one completion-queue
// event.
func (c *Context) processOnce(deadline time.Time, cqOnly bool) (bool, NextStatus) {
	handled := false
	if !cqOnly {
		if c.processLocalQueue(true, invokeHandlerYes) {
			handled = true
		}
		if q := c.remote.tryMarkInactiveOrDequeueAll(); !q.empty() {
			c.local.concat(q)
			if c.processLocalQueue(true, invokeHandlerYes) {
				handled = true
			}
		}
		if c.stopped.Load() {
			// Re-check the loop condition instead of blocking; Stop arms
			// the work alarm, so skipping the wait loses nothing.
			return handled, NextEvent
		}
	}
	ev, status := c.cq.AsyncNext(deadline)
	if status == NextEvent && c.processEvent(ev, cqOnly, invokeHandlerYes) {
		handled = true
	}
	return handled, status
}

// processLocalQueue drains the local FIFO, completing each operation with
// ok. On the normal path the drain aborts as soon as the context stops,
// leaving the remainder queued for after Reset; the shutdown-drain path
// consumes everything.
func (c *Context) processLocalQueue(ok bool, invoke invokeHandler) bool {
	processed := false
	c.processingLocal = true
	for !c.local.empty() {
		if invoke == invokeHandlerYes && c.stopped.Load() {
			break
		}
		op := c.local.popFront()
		op.complete(c, ok, invoke)
		processed = true
	}
	c.processingLocal = false
	return processed
}

// processEvent completes one completion-queue event. The work-alarm sentinel
// tag means "the work queues have items": clear the armed flag, splice the
// remote backlog into the local queue, and drain. Any other tag is an
// operation address.
func (c *Context) processEvent(ev Event, cqOnly bool, invoke invokeHandler) bool {
	if ev.Tag == Tag(&c.hasWorkOp) {
		c.hasWork.Store(false)
		if cqOnly {
			return false
		}
		c.local.concat(c.remote.dequeueAll())
		return c.processLocalQueue(ev.OK, invoke)
	}
	op := (*operation)(ev.Tag)
	op.complete(c, ev.OK, invoke)
	return invoke == invokeHandlerYes
}

// Close tears the context down: Stop, shut the completion queue down, then
// drain every remaining event and queued operation, releasing records
// without invoking their handlers. Idempotent; always returns nil. Closing
// while a worker is inside Run/Poll panics.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		if c.running.Load() {
			panic("grpccontext: Close while a worker is running")
		}
		c.Stop()
		c.cq.Shutdown()
		var drained int
		c.processLocalQueue(false, invokeHandlerNo)
		for q := c.remote.dequeueAll(); !q.empty(); q = c.remote.dequeueAll() {
			c.local.concat(q)
			c.processLocalQueue(false, invokeHandlerNo)
		}
		for {
			ev, status := c.cq.AsyncNext(DistantFuture)
			if status != NextEvent {
				break
			}
			c.processEvent(ev, false, invokeHandlerNo)
			drained++
		}
		c.arena.release()
		c.logger.Debug().Int("events", drained).Log("grpccontext: closed")
	})
	return nil
}

// goroutineID returns the current goroutine's ID, parsed from the runtime
// stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
