package grpccontext

import "errors"

// Standard errors.
var (
	// ErrContextStopped is delivered by schedule senders whose operation was
	// drained at teardown before it could run.
	ErrContextStopped = errors.New("grpccontext: context stopped before the operation ran")

	// ErrEventAlreadyAwaited is returned when a second waiter attempts to
	// suspend on a manual-reset event that already has one.
	ErrEventAlreadyAwaited = errors.New("grpccontext: event already has a waiter")
)
