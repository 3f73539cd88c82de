package grpccontext

import (
	"context"
	"sync/atomic"
	"time"
)

// Alarm schedules one-shot completions at a deadline on a Context. At most
// one wait may be outstanding per alarm at a time; the alarm may be reused
// from within its own completion handler.
//
// Closing the Context while a wait is in flight never invokes its handler:
// a completion already queued (including one produced by Cancel) is drained
// with the rest of the teardown backlog, and a deadline that fires after
// Close is refused by the shut-down completion queue.
type Alarm struct {
	c      *Context
	native queueAlarm
	armed  atomic.Bool
}

// NewAlarm creates an alarm bound to c.
func NewAlarm(c *Context) *Alarm {
	return &Alarm{c: c}
}

// Wait arms the alarm: f is invoked on the worker with ok=true when deadline
// fires, or ok=false when the wait is cancelled. Calling Wait while a wait
// is already outstanding panics.
func (a *Alarm) Wait(deadline time.Time, f func(ok bool)) {
	a.wait(deadline, f, nil)
}

// WaitContext is Wait with a cancellation token: cancelling ctx cancels the
// wait, which completes promptly with ok=false. A result races a cancel at
// most once; f is invoked exactly once either way.
func (a *Alarm) WaitContext(ctx context.Context, deadline time.Time, f func(ok bool)) {
	a.wait(deadline, f, ctx)
}

func (a *Alarm) wait(deadline time.Time, f func(ok bool), ctx context.Context) {
	if !a.armed.CompareAndSwap(false, true) {
		panic("grpccontext: Alarm.Wait while a wait is outstanding")
	}
	var stop func() bool
	if ctx != nil {
		stop = context.AfterFunc(ctx, a.Cancel)
	}
	op := allocOperation(a.c, nil)
	op.onComplete = completeNotify
	op.fnOK = func(ok bool) {
		if stop != nil {
			stop()
		}
		a.armed.Store(false)
		f(ok)
	}
	a.c.WorkStarted()
	a.native.Set(a.c.cq, deadline, Tag(op))
	// A ctx that was already done may have run Cancel before Set armed the
	// native alarm, when it was still a no-op; cancel again now it is armed.
	if ctx != nil && ctx.Err() != nil {
		a.Cancel()
	}
}

// Cancel cancels an outstanding wait; its handler completes with ok=false on
// the next worker iteration. No-op when nothing is outstanding or the
// deadline already fired.
func (a *Alarm) Cancel() {
	a.native.Cancel()
}
