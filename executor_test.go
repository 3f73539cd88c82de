package grpccontext

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Defaults(t *testing.T) {
	c := newTestContext(t)
	e := c.Executor()

	assert.True(t, e.BlockingNever(), "the default executor is blocking-never")
	assert.False(t, e.RelationshipContinuation())
	assert.False(t, e.OutstandingWorkTracked())
	assert.Nil(t, e.OperationPool())
	assert.Same(t, c, e.Context())
}

func TestExecutor_Equality(t *testing.T) {
	c := newTestContext(t)
	c2 := newTestContext(t)

	assert.True(t, c.Executor() == c.Executor(), "handles with identical state compare equal")
	assert.False(t, c.Executor() == c2.Executor(), "different contexts differ")
	assert.False(t, c.Executor() == c.Executor().WithBlockingNever(false), "different options differ")

	pool := &sync.Pool{New: func() any { return new(operation) }}
	assert.False(t, c.Executor() == c.Executor().WithOperationPool(pool), "different pools differ")
	assert.True(t,
		c.Executor().WithOperationPool(pool) == c.Executor().WithOperationPool(pool),
		"same pool compares equal")
}

func TestExecutor_PropertyRoundTrip(t *testing.T) {
	c := newTestContext(t)
	e := c.Executor()

	e2 := e.WithBlockingNever(false).WithRelationshipContinuation(true)
	assert.False(t, e2.BlockingNever())
	assert.True(t, e2.RelationshipContinuation())
	assert.True(t, e2.WithBlockingNever(true).WithRelationshipContinuation(false) == e)
}

func TestExecutor_PostRunsExactlyOnce(t *testing.T) {
	c := newTestContext(t)

	var counter int
	c.Executor().Post(func() { counter++ })
	c.Run()
	require.Equal(t, 1, counter)

	// A second run finds nothing left.
	if c.Run() {
		t.Fatal("the post must not run again")
	}
	require.Equal(t, 1, counter)
}

func TestExecutor_DispatchInlineOnWorker(t *testing.T) {
	c := newTestContext(t)
	e := c.Executor().WithBlockingNever(false)

	var order []string
	e.Post(func() {
		e.Dispatch(func() { order = append(order, "inline") })
		order = append(order, "after")
	})
	c.Run()

	// Inline means before the rest of the posting handler; and Run must not
	// invoke it a second time.
	require.Equal(t, []string{"inline", "after"}, order)
}

func TestExecutor_DispatchPostsWhenBlockingNever(t *testing.T) {
	c := newTestContext(t)
	e := c.Executor() // blocking-never by default

	var order []string
	e.Post(func() {
		e.Dispatch(func() { order = append(order, "dispatched") })
		order = append(order, "after")
	})
	c.Run()

	require.Equal(t, []string{"after", "dispatched"}, order)
}

func TestExecutor_DispatchPostsOffWorker(t *testing.T) {
	c := newTestContext(t)
	e := c.Executor().WithBlockingNever(false)

	ran := false
	e.Dispatch(func() { ran = true })
	assert.False(t, ran, "dispatch off the worker must not run inline")
	c.Run()
	assert.True(t, ran)
}

func TestExecutor_ExecuteHonoursBlockingProperty(t *testing.T) {
	c := newTestContext(t)

	var order []string
	blockingNever := c.Executor()
	blockingPossibly := blockingNever.WithBlockingNever(false)
	blockingPossibly.Post(func() {
		blockingPossibly.Execute(func() { order = append(order, "inline") })
		blockingNever.Execute(func() { order = append(order, "posted") })
		order = append(order, "after")
	})
	c.Run()

	require.Equal(t, []string{"inline", "after", "posted"}, order)
}

func TestExecutor_DeferRunsOnWorker(t *testing.T) {
	c := newTestContext(t)

	var ran bool
	c.Executor().Defer(func() { ran = true })
	c.Run()
	assert.True(t, ran)
}

func TestExecutor_WorkTracked(t *testing.T) {
	c := newTestContext(t)

	tracked := c.Executor().WithOutstandingWorkTracked(true)
	require.True(t, tracked.OutstandingWorkTracked())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run()
	}()

	// The tracked handle alone keeps Run alive.
	var ran bool
	wait := make(chan struct{})
	tracked.Post(func() { ran = true; close(wait) })
	select {
	case <-wait:
	case <-time.After(5 * time.Second):
		t.Fatal("post was not handled")
	}

	select {
	case <-done:
		t.Fatal("Run returned while a tracked handle was live")
	case <-time.After(20 * time.Millisecond):
	}

	// Copies share the single unit of work; Release is idempotent.
	clone := tracked
	clone.Release()
	tracked.Release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the tracked handle released")
	}
	assert.True(t, ran)
}

func TestExecutor_WorkTrackedToggleOffKeepsAcquisition(t *testing.T) {
	c := newTestContext(t)

	tracked := c.Executor().WithOutstandingWorkTracked(true)
	untracked := tracked.WithOutstandingWorkTracked(false)
	assert.False(t, untracked.OutstandingWorkTracked())
	untracked.Release() // no-op: the untracked copy dropped the association

	assert.False(t, c.Stopped())
	tracked.Release()
	assert.True(t, c.Stopped(), "releasing the last work unit auto-stops")
}

func TestExecutor_CustomOperationPool(t *testing.T) {
	c := newTestContext(t)

	var allocations int
	pool := &sync.Pool{New: func() any {
		allocations++
		return new(operation)
	}}
	e := c.Executor().WithOperationPool(pool)

	var counter int
	e.Post(func() { counter++ })
	c.Run()

	require.Equal(t, 1, counter)
	assert.Equal(t, 1, allocations, "the custom pool must serve the allocation")
}

func TestScheduleSender_CompletesOnWorker(t *testing.T) {
	c := newTestContext(t)

	var err error
	var onWorker bool
	completed := false
	c.Executor().Schedule().Start(func(e error) {
		err = e
		onWorker = c.RunningInThisGoroutine()
		completed = true
	})
	c.Run()

	require.True(t, completed)
	assert.NoError(t, err)
	assert.True(t, onWorker, "the sender must complete on the worker")
}

func TestScheduleSender_ReportsTeardown(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	var got error
	completed := false
	c.Executor().Schedule().Start(func(e error) {
		got = e
		completed = true
	})
	require.NoError(t, c.Close())

	require.True(t, completed, "teardown must still complete the sender")
	assert.True(t, errors.Is(got, ErrContextStopped))
}
