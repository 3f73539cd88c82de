package grpccontext

import (
	"context"
)

// Waiter decouples starting a one-shot asynchronous operation from consuming
// its result: Initiate starts the operation immediately, Wait picks the
// result up whenever the caller gets around to it. Typical use is to begin
// the next read or alarm before doing unrelated work:
//
//	var w grpccontext.Waiter[bool]
//	w.Initiate(func(done func(bool)) { alarm.Wait(deadline, done) })
//	// ... other work ...
//	ok, err := w.Wait(ctx)
//
// After the result is consumed the Waiter may be initiated again. The zero
// value is ready for use.
type Waiter[T any] struct {
	event ManualResetEvent[T]
}

// Initiate discards any previous result and calls start with the waiter's
// completion slot. start must arrange for complete to be called exactly
// once; the result then satisfies a pending or future Wait. Initiating while
// a previous initiation has not yet completed is a contract violation.
func (w *Waiter[T]) Initiate(start func(complete func(T))) {
	w.event.Reset()
	start(w.event.Set)
}

// Wait returns the initiated operation's result, blocking until it arrives
// or ctx is cancelled. Once the result is present every Wait returns it
// immediately, until the next Initiate. Cancellation leaves the waiter
// re-awaitable: a later Wait picks up the result when it lands.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	return w.event.Wait(ctx)
}

// IsReady reports whether the result has arrived and Wait would return
// immediately.
func (w *Waiter[T]) IsReady() bool {
	return w.event.Ready()
}
