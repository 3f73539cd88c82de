package grpccontext

import (
	"google.golang.org/grpc"
)

// grpc-go has no tag-based asynchronous surface: stream operations block the
// calling goroutine. These helpers bridge the gap by running the blocking
// call on its own goroutine and surfacing the outcome as a completion-queue
// event, so the handler fires on the worker like any other completion.
// ok=false carries any stream error, including io.EOF; the caller inspects
// the stream for details, mirroring the completion-not-ok contract.

// NotifyRecv receives the next message from s into m, completing f(ok) on
// the worker. The message is only valid when ok is true. As with any stream,
// at most one receive may be in flight at a time.
func NotifyRecv(c *Context, s grpc.ClientStream, m any, f func(ok bool)) {
	c.Initiate(func(q *CompletionQueue, tag Tag) {
		go func() {
			q.Submit(tag, s.RecvMsg(m) == nil)
		}()
	}, f)
}

// NotifySend sends m on s, completing f(ok) on the worker. At most one send
// may be in flight at a time.
func NotifySend(c *Context, s grpc.ClientStream, m any, f func(ok bool)) {
	c.Initiate(func(q *CompletionQueue, tag Tag) {
		go func() {
			q.Submit(tag, s.SendMsg(m) == nil)
		}()
	}, f)
}

// NotifyCloseSend half-closes the sending side of s, completing f(ok) on the
// worker.
func NotifyCloseSend(c *Context, s grpc.ClientStream, f func(ok bool)) {
	c.Initiate(func(q *CompletionQueue, tag Tag) {
		go func() {
			q.Submit(tag, s.CloseSend() == nil)
		}()
	}, f)
}
