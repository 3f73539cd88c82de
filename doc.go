// Package grpccontext provides a single-worker asynchronous execution
// context driven by a completion queue, in the shape gRPC's C core exposes:
// operations are initiated with an opaque tag, and a single blocking wait
// per iteration surfaces (tag, ok) completion events.
//
// # Architecture
//
// The package is built around a [Context] that multiplexes two event
// sources onto one cooperatively scheduled worker goroutine:
//
//   - locally posted work items: a plain FIFO when posted from the worker,
//     a lock-free MPSC queue when posted from anywhere else
//   - completion-queue events: one blocking [CompletionQueue.AsyncNext] per
//     iteration, the context's only OS-level wait
//
// When a producer fills the previously empty remote queue, it arms the work
// alarm: an immediately firing completion-queue event whose sentinel tag
// tells the worker "the work queues have items". The worker therefore never
// misses a post, no matter how long it sleeps.
//
// [Executor] is the cheap value handle external code schedules through
// ([Executor.Post], [Executor.Dispatch], [Executor.Execute],
// [Executor.Schedule]); [Alarm] provides cancellable deadline completions,
// and [Waiter] decouples starting a one-shot operation from awaiting its
// result.
//
// # Execution Model
//
// Exactly one goroutine at a time may drive a Context, by calling
// [Context.Run], [Context.Poll], or one of their variants; that goroutine
// is the worker. Each iteration drains the local queue before consuming one
// completion-queue event, so neither source can starve the other. Every
// initiated operation counts as outstanding work; when the count drops to
// zero the context stops itself and Run returns.
//
// # Thread Safety
//
//   - [Executor.Post], [Executor.Dispatch] and friends are safe from any
//     goroutine
//   - [CompletionQueue.Submit] is safe from any goroutine
//   - [Context.Stop], [Context.WorkStarted], [Context.WorkFinished] are
//     safe from any goroutine
//   - Handlers run on the worker goroutine, always
//
// # Usage
//
//	c, err := grpccontext.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	e := c.Executor()
//	e.Post(func() {
//		fmt.Println("on the worker")
//	})
//	c.Run()
//
// # Errors
//
// Cancelled or failed completions are reported through the handler's ok
// argument, never by hanging. [ErrContextStopped] is delivered to schedule
// senders drained at teardown; [ErrEventAlreadyAwaited] guards the
// one-waiter contract of [ManualResetEvent].
package grpccontext
