// Package evtimer keeps a queue of delayed events on top of a single xtimer.
// Only the earliest event is ever armed; when it fires every due event is
// handed to the handler and the timer is moved to the next one.
package evtimer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/logging"

	"tickos/xtimer"
)

var ErrAlreadyQueued = errors.New("evtimer: event already queued")

// State of an Evtimer
type State uint8

const (
	Idle  State = iota // nothing queued
	Armed              // the timer is set for the head event
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Event is a caller owned queue entry. It must stay alive while queued.
type Event struct {
	Offset  uint32 // milliseconds from Add
	Payload any

	deadline uint64 // absolute, microseconds
	next     *Event
	queued   bool
}

// Deadline returns the absolute time in microseconds the event was queued
// for. It is only meaningful after Add.
func (ev *Event) Deadline() uint64 { return ev.deadline }

// Handler receives due events. It runs on the timer fire path and may Add
// and Del events, including the one it was given.
type Handler func(*Event)

// Evtimer is one event queue
type Evtimer struct {
	sub     *xtimer.Subsystem
	handler Handler
	timer   xtimer.Timer
	log     logging.LeveledLogger

	mu   sync.Mutex
	head *Event
	n    int
	gen  uint64 // bumped on every head change
}

// Option customizes an Evtimer
type Option func(*Evtimer)

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(e *Evtimer) {
		e.log = f.NewLogger("evtimer")
	}
}

// New creates an idle Evtimer that dispatches to handler.
func New(sub *xtimer.Subsystem, handler Handler, opts ...Option) *Evtimer {
	e := &Evtimer{sub: sub, handler: handler}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewDefaultLoggerFactory().NewLogger("evtimer")
	}
	e.timer.Callback = xtimer.ISRFunc(e.fire)
	return e
}

// Add queues ev for Offset milliseconds from now. The deadline is fixed at
// this point. An Offset of zero dispatches ev before Add returns, dropping
// any earlier queuing of it. Queuing an event twice is rejected.
func (e *Evtimer) Add(ev *Event) error {
	if ev.Offset == 0 {
		e.mu.Lock()
		headChanged := e.unlinkLocked(ev)
		e.mu.Unlock()
		if headChanged {
			e.rearm()
		}
		e.handler(ev)
		return nil
	}

	e.mu.Lock()
	if ev.queued {
		e.mu.Unlock()
		return fmt.Errorf("%w: offset %d ms", ErrAlreadyQueued, ev.Offset)
	}
	ev.deadline = e.sub.Now64() + uint64(ev.Offset)*1000
	e.insertLocked(ev)
	isHead := e.head == ev
	e.mu.Unlock()

	e.log.Tracef("queued event for %d, head=%v", ev.deadline, isHead)
	if isHead {
		e.rearm()
	}
	return nil
}

// Del removes ev from the queue. It reports false when ev was not queued.
func (e *Evtimer) Del(ev *Event) bool {
	e.mu.Lock()
	queued := ev.queued
	headChanged := e.unlinkLocked(ev)
	e.mu.Unlock()
	if headChanged {
		e.rearm()
	}
	return queued
}

// State reports whether the timer is armed.
func (e *Evtimer) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.head != nil {
		return Armed
	}
	return Idle
}

// Len returns the number of queued events.
func (e *Evtimer) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Print writes the queue, earliest first.
func (e *Evtimer) Print(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.sub.Now64()
	for ev := e.head; ev != nil; ev = ev.next {
		var left uint64
		if ev.deadline > now {
			left = ev.deadline - now
		}
		if _, err := fmt.Fprintf(w, "ev %p: offset=%d ms deadline=%d left=%d us\n", ev, ev.Offset, ev.deadline, left); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evtimer) insertLocked(ev *Event) {
	ev.queued = true
	e.n++
	if e.head == nil || ev.deadline < e.head.deadline {
		ev.next = e.head
		e.head = ev
		e.gen++
		return
	}
	cur := e.head
	for cur.next != nil && cur.next.deadline <= ev.deadline {
		cur = cur.next
	}
	ev.next = cur.next
	cur.next = ev
}

// unlinkLocked reports whether the head changed
func (e *Evtimer) unlinkLocked(ev *Event) bool {
	if !ev.queued {
		return false
	}
	ev.queued = false
	e.n--
	if e.head == ev {
		e.head = ev.next
		ev.next = nil
		e.gen++
		return true
	}
	for cur := e.head; cur != nil; cur = cur.next {
		if cur.next == ev {
			cur.next = ev.next
			break
		}
	}
	ev.next = nil
	return false
}

// rearm points the timer at the head event. The timer is set without the
// lock held since a close deadline fires inside Set; if the head moved
// meanwhile the timer is set again.
func (e *Evtimer) rearm() {
	for {
		e.mu.Lock()
		gen := e.gen
		head := e.head
		var deadline uint64
		if head != nil {
			deadline = head.deadline
		}
		e.mu.Unlock()

		if head == nil {
			e.sub.Remove(&e.timer)
		} else {
			var offset uint64
			if now := e.sub.Now64(); deadline > now {
				offset = deadline - now
			}
			e.sub.Set64(&e.timer, offset)
		}

		e.mu.Lock()
		same := e.gen == gen
		e.mu.Unlock()
		if same {
			return
		}
	}
}

// fire runs on the xtimer fire path
func (e *Evtimer) fire(any) {
	now := e.sub.Now64()

	e.mu.Lock()
	var due []*Event
	for e.head != nil && e.head.deadline <= now {
		ev := e.head
		e.head = ev.next
		ev.next = nil
		ev.queued = false
		e.n--
		due = append(due, ev)
	}
	if len(due) > 0 {
		e.gen++
	}
	e.mu.Unlock()

	for _, ev := range due {
		e.handler(ev)
	}
	e.rearm()
}
