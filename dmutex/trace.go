package dmutex

import "go.uber.org/atomic"

// tracer counts queueing events. It is only installed by tests; a nil tracer
// records nothing.
type tracer struct {
	enqueued  atomic.Uint64 // waiters that queued and blocked
	signalled atomic.Uint64 // wake, skip, catch and relay signals delivered
}

var trace *tracer

func (t *tracer) enqueue() {
	if t != nil {
		t.enqueued.Inc()
	}
}

func (t *tracer) signal() {
	if t != nil {
		t.signalled.Inc()
	}
}
