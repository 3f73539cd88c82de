package grpccontext

import (
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
)

// testEvent is a minimal logiface.Event implementation for exercising the
// structured logging paths.
type testEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	fields map[string]any
	msg    string
}

func (e *testEvent) Level() logiface.Level { return e.level }
func (e *testEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}
func (e *testEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// testEventFactory creates testEvent instances.
type testEventFactory struct{}

func (f *testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level}
}

// testEventWriter collects written events.
type testEventWriter struct {
	mu     sync.Mutex
	events []*testEvent
}

func (w *testEventWriter) Write(event *testEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *testEventWriter) messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.events))
	for i, e := range w.events {
		out[i] = e.msg
	}
	return out
}

func newTestLogger(writer *testEventWriter) *logiface.Logger[logiface.Event] {
	return logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](&testEventFactory{}),
		logiface.WithWriter[*testEvent](writer),
		logiface.WithLevel[*testEvent](logiface.LevelDebug),
	).Logger()
}

func TestLogging_CloseLogsDrain(t *testing.T) {
	writer := &testEventWriter{}
	c, err := New(WithLogger(newTestLogger(writer)))
	if err != nil {
		t.Fatal(err)
	}
	c.Executor().Post(func() {})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, msg := range writer.messages() {
		if msg == "grpccontext: closed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("close must emit a drain log, got %v", writer.messages())
	}
}

func TestLogging_PanicLogged(t *testing.T) {
	writer := &testEventWriter{}
	c, err := New(WithLogger(newTestLogger(writer)))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	c.Executor().Post(func() { panic("boom") })
	func() {
		defer func() { _ = recover() }()
		c.Run()
	}()

	var found bool
	for _, msg := range writer.messages() {
		if msg == "grpccontext: handler panicked" {
			found = true
		}
	}
	if !found {
		t.Fatalf("handler panics must be logged, got %v", writer.messages())
	}
}

func TestLogging_NilLoggerIsSilent(t *testing.T) {
	// The default context has no logger; everything must still work.
	c := newTestContext(t)
	var counter int
	c.Executor().Post(func() { counter++ })
	c.Run()
	if counter != 1 {
		t.Fatal("work must run with logging disabled")
	}
}
