package engine

import (
	"sync/atomic"
	"time"
)

// EventKind classifies processing events.
type EventKind int

const (
	// EventDeadlineMiss reports a node that exceeded the buffer
	// period; its outputs were replaced with silence for that buffer.
	EventDeadlineMiss EventKind = iota
	// EventScriptFault reports a script node whose invocation faulted
	// or overran its budget.
	EventScriptFault
	// EventConfigError reports a runtime that rejected a parameter
	// reconfiguration.
	EventConfigError
)

// String returns the canonical event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDeadlineMiss:
		return "deadline-miss"
	case EventScriptFault:
		return "script-fault"
	case EventConfigError:
		return "config-error"
	}
	return "unknown"
}

// Event is one processing incident recorded by the real-time context
// and drained by the control context.
type Event struct {
	Kind    EventKind
	Node    string
	Elapsed time.Duration
	Err     error
}

const eventRingSize = 256 // power of two

// eventRing is a fixed single-producer/single-consumer ring. The
// processing context pushes, the control context drains; when full,
// new events are dropped rather than blocking the producer.
type eventRing struct {
	buf  [eventRingSize]Event
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
}

func (r *eventRing) push(e Event) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= eventRingSize {
		return false
	}

	r.buf[tail&(eventRingSize-1)] = e
	r.tail.Store(tail + 1)

	return true
}

func (r *eventRing) drain() []Event {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return nil
	}

	out := make([]Event, 0, tail-head)
	for ; head < tail; head++ {
		out = append(out, r.buf[head&(eventRingSize-1)])
	}
	r.head.Store(head)

	return out
}
