package xtimer

import (
	"fmt"
	"io"
)

// TraceKind identifies a scheduling event kept for post-mortem analysis
type TraceKind uint8

const (
	TraceSet       TraceKind = 1 // timer linked into the list
	TraceRemove    TraceKind = 2 // timer unlinked before firing
	TraceFire      TraceKind = 3 // timer fired from the list
	TraceImmediate TraceKind = 4 // target already in the past, fired at once
	TraceSpin      TraceKind = 5 // offset below backoff, spun then fired
	TraceOverflow  TraceKind = 6 // fire path observed a new counter period
)

func (k TraceKind) String() string {
	switch k {
	case TraceSet:
		return "SET"
	case TraceRemove:
		return "REMOVE"
	case TraceFire:
		return "FIRE"
	case TraceImmediate:
		return "PAST!"
	case TraceSpin:
		return "SPIN"
	case TraceOverflow:
		return "OVERFLOW"
	}
	return "UNKNOWN"
}

// TraceEvent is one entry of the trace ring
type TraceEvent struct {
	Kind  TraceKind
	Ticks uint64 // counter time the event was recorded at
	Value uint64 // target for timer events, long count for OVERFLOW
}

// DefaultTraceSize is the number of events kept when WithTraceRing is not given
const DefaultTraceSize = 32

// traceRing keeps the last N events. It is only touched with the irq lock
// held, so recording stays cheap enough for the fire path.
type traceRing struct {
	events []TraceEvent
	head   int
	total  uint64
}

func newTraceRing(size int) *traceRing {
	if size <= 0 {
		return nil
	}
	return &traceRing{events: make([]TraceEvent, size)}
}

func (r *traceRing) record(kind TraceKind, ticks, value uint64) {
	if r == nil {
		return
	}
	r.events[r.head] = TraceEvent{Kind: kind, Ticks: ticks, Value: value}
	r.head = (r.head + 1) % len(r.events)
	r.total++
}

// snapshot returns the events oldest first
func (r *traceRing) snapshot() []TraceEvent {
	if r == nil {
		return nil
	}
	out := make([]TraceEvent, 0, len(r.events))
	for i := range r.events {
		ev := r.events[(r.head+i)%len(r.events)]
		if ev.Kind == 0 {
			continue // empty slot
		}
		out = append(out, ev)
	}
	return out
}

// Trace returns the recorded scheduling events, oldest first.
func (s *Subsystem) Trace() []TraceEvent {
	st := s.irq.disable()
	defer s.irq.restore(st)
	return s.trace.snapshot()
}

// DumpTrace writes the trace ring in a human readable form. The header
// counts events recorded since the last clear and those the ring overwrote.
func (s *Subsystem) DumpTrace(w io.Writer) error {
	st := s.irq.disable()
	events := s.trace.snapshot()
	var total uint64
	if s.trace != nil {
		total = s.trace.total
	}
	s.irq.restore(st)

	dropped := total - uint64(len(events))
	if _, err := fmt.Fprintf(w, "[TIMING] === Timer Trace (%d events, %d dropped) ===\n", total, dropped); err != nil {
		return err
	}
	for _, ev := range events {
		if _, err := fmt.Fprintf(w, "[TIMING] %-9s ticks=%d value=%d\n", ev.Kind, ev.Ticks, ev.Value); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "[TIMING] === End Dump ===")
	return err
}

// ClearTrace empties the trace ring.
func (s *Subsystem) ClearTrace() {
	st := s.irq.disable()
	defer s.irq.restore(st)
	if s.trace == nil {
		return
	}
	for i := range s.trace.events {
		s.trace.events[i] = TraceEvent{}
	}
	s.trace.head = 0
	s.trace.total = 0
}
