// Package event implements event queues served by a single handler
// goroutine, and timeouts that post an event when they expire.
package event

import (
	"context"
	"sync"

	"tickos/xtimer"
)

// Event is a caller owned queue entry. Its handler runs on the goroutine
// serving the queue.
type Event struct {
	Handler func(*Event)

	next   *Event
	queued bool
}

// Queue is a FIFO of events with one consumer.
type Queue struct {
	mu     sync.Mutex
	head   *Event
	tail   *Event
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Post appends ev. Posting an event that is already queued does nothing.
// It never blocks and is safe from the timer fire path.
func (q *Queue) Post(ev *Event) {
	q.mu.Lock()
	if ev.queued {
		q.mu.Unlock()
		return
	}
	ev.queued = true
	ev.next = nil
	if q.tail == nil {
		q.head = ev
	} else {
		q.tail.next = ev
	}
	q.tail = ev
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Cancel removes a queued event. It reports false when ev was not queued.
func (q *Queue) Cancel(ev *Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !ev.queued {
		return false
	}
	var prev *Event
	for cur := q.head; cur != nil; prev, cur = cur, cur.next {
		if cur != ev {
			continue
		}
		if prev == nil {
			q.head = cur.next
		} else {
			prev.next = cur.next
		}
		if q.tail == cur {
			q.tail = prev
		}
		break
	}
	ev.next = nil
	ev.queued = false
	return true
}

// Get pops the oldest event without blocking, nil when empty.
func (q *Queue) Get() *Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev := q.head
	if ev == nil {
		return nil
	}
	q.head = ev.next
	if q.head == nil {
		q.tail = nil
	}
	ev.next = nil
	ev.queued = false
	return ev
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for ev := q.head; ev != nil; ev = ev.next {
		n++
	}
	return n
}

// Wait blocks until an event is available.
func (q *Queue) Wait() *Event {
	ev, _ := q.WaitContext(context.Background())
	return ev
}

// WaitContext is Wait that gives up when ctx is done.
func (q *Queue) WaitContext(ctx context.Context) (*Event, error) {
	for {
		if ev := q.Get(); ev != nil {
			return ev, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func signalTimeout(arg any) {
	select {
	case arg.(chan struct{}) <- struct{}{}:
	default:
	}
}

// WaitTimeout waits at most us microseconds of sub's clock and returns nil
// on timeout.
func (q *Queue) WaitTimeout(sub *xtimer.Subsystem, us uint64) *Event {
	if ev := q.Get(); ev != nil {
		return ev
	}
	expired := make(chan struct{}, 1)
	t := xtimer.Timer{Callback: xtimer.ISRFunc(signalTimeout), Arg: expired}
	sub.Set64(&t, us)
	defer sub.Remove(&t)

	for {
		if ev := q.Get(); ev != nil {
			return ev
		}
		select {
		case <-q.signal:
		case <-expired:
			return nil
		}
	}
}

// Loop serves the queue until ctx is done, running each event's handler.
func (q *Queue) Loop(ctx context.Context) error {
	for {
		ev, err := q.WaitContext(ctx)
		if err != nil {
			return err
		}
		if ev.Handler != nil {
			ev.Handler(ev)
		}
	}
}

// Callback is an event that calls a function with an argument
type Callback struct {
	Event
	fn  func(arg any)
	arg any
}

// NewCallback returns an event that runs fn(arg) when served.
func NewCallback(fn func(arg any), arg any) *Callback {
	c := &Callback{fn: fn, arg: arg}
	c.Handler = func(*Event) { c.fn(c.arg) }
	return c
}
