package grpccontext

import "sync/atomic"

// WorkGuard holds one unit of outstanding work across a suspension: acquire
// it before handing control away, call Done when the logical operation has
// finished. Done is idempotent, so it can safely sit on every exit path.
type WorkGuard struct {
	ctx  *Context
	done atomic.Bool
}

// NewWorkGuard acquires a unit of outstanding work on c.
func NewWorkGuard(c *Context) *WorkGuard {
	c.WorkStarted()
	return &WorkGuard{ctx: c}
}

// Done releases the guard's unit of work. Only the first call has effect.
func (g *WorkGuard) Done() {
	if g.done.CompareAndSwap(false, true) {
		g.ctx.WorkFinished()
	}
}
