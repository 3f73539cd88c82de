package grpccontext

import (
	"context"
	"sync/atomic"
)

// eventWaiter is a suspended ManualResetEvent.Wait. The size-1 channel lets
// Set hand the value over without ever blocking.
type eventWaiter[T any] struct {
	ch chan T
}

// ManualResetEvent is a hold-the-last-result cell with three states,
// distinguished by a single atomic pointer:
//
//   - nil: Empty - no result, nobody waiting
//   - the event's own sentinel address: Set - a result is stored
//   - otherwise: Waiting - a suspended Wait will take the next result
//
// Set while Waiting delivers to the waiter synchronously and leaves the
// event Set, so any number of further Wait calls observe the same result
// until Reset. At most one Wait may be suspended at a time. The zero value
// is an Empty event.
type ManualResetEvent[T any] struct {
	state    atomic.Pointer[eventWaiter[T]]
	value    T
	sentinel eventWaiter[T]
}

// Set stores v, wakes a suspended Wait if there is one, and marks the event
// ready. Calling Set again before Reset overwrites the stored result.
func (e *ManualResetEvent[T]) Set(v T) {
	e.value = v
	if old := e.state.Swap(&e.sentinel); old != nil && old != &e.sentinel {
		old.ch <- v
	}
}

// Ready reports whether a result is stored.
func (e *ManualResetEvent[T]) Ready() bool {
	return e.state.Load() == &e.sentinel
}

// Reset clears a stored result, returning the event to Empty. A suspended
// Wait is left untouched.
func (e *ManualResetEvent[T]) Reset() {
	e.state.CompareAndSwap(&e.sentinel, nil)
}

// Wait returns the stored result, suspending until Set or ctx cancellation
// when none is present yet. The result is not consumed: it satisfies every
// Wait until Reset. Cancellation never loses a delivered result - if the
// result arrives first, Wait returns it and the cancellation is ignored -
// and leaves the event Empty so a later Wait can be issued. A second
// concurrent Wait fails with ErrEventAlreadyAwaited.
func (e *ManualResetEvent[T]) Wait(ctx context.Context) (T, error) {
	for {
		switch s := e.state.Load(); s {
		case &e.sentinel:
			return e.value, nil
		case nil:
			w := &eventWaiter[T]{ch: make(chan T, 1)}
			if !e.state.CompareAndSwap(nil, w) {
				continue
			}
			select {
			case v := <-w.ch:
				return v, nil
			case <-ctx.Done():
				if e.state.CompareAndSwap(w, nil) {
					var zero T
					return zero, ctx.Err()
				}
				// Set won the race and is committed to delivering.
				return <-w.ch, nil
			}
		default:
			var zero T
			return zero, ErrEventAlreadyAwaited
		}
	}
}
