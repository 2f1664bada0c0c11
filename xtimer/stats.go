package xtimer

import "sync/atomic"

// Stats is a snapshot of the subsystem counters
type Stats struct {
	Active       int    // timers currently linked
	Sets         uint64 // timers linked into the list
	Removes      uint64 // timers unlinked before firing
	Fired        uint64 // callbacks dispatched, all paths
	Spins        uint64 // sets that spun below backoff
	Immediate    uint64 // sets whose target was already in the past
	Late         uint64 // list timers that fired after their target tick
	Overflows    uint64 // counter periods observed by the fire path
	MaxLateTicks uint64
}

type statCounters struct {
	sets      atomic.Uint64
	removes   atomic.Uint64
	fired     atomic.Uint64
	spins     atomic.Uint64
	immediate atomic.Uint64
	late      atomic.Uint64
	overflows atomic.Uint64
	maxLate   atomic.Uint64
}

func (c *statCounters) noteLate(ticks uint64) {
	c.late.Add(1)
	for {
		cur := c.maxLate.Load()
		if ticks <= cur || c.maxLate.CompareAndSwap(cur, ticks) {
			return
		}
	}
}

// Stats returns the current counters.
func (s *Subsystem) Stats() Stats {
	st := s.irq.disable()
	active := s.active
	s.irq.restore(st)

	return Stats{
		Active:       active,
		Sets:         s.stats.sets.Load(),
		Removes:      s.stats.removes.Load(),
		Fired:        s.stats.fired.Load(),
		Spins:        s.stats.spins.Load(),
		Immediate:    s.stats.immediate.Load(),
		Late:         s.stats.late.Load(),
		Overflows:    s.stats.overflows.Load(),
		MaxLateTicks: s.stats.maxLate.Load(),
	}
}
