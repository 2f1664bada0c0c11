package xtimer

// Set arms t to fire offsetUs microseconds from now. An active t is moved.
func (s *Subsystem) Set(t *Timer, offsetUs uint32) {
	s.Set64(t, uint64(offsetUs))
}

// Set64 is Set with a 64 bit offset. Offsets are rounded up to whole ticks
// so the timer never fires before the requested time.
func (s *Subsystem) Set64(t *Timer, offsetUs uint64) {
	s.setOffset(t, s.conv.TicksFromUsecCeil64(offsetUs))
}

// SetTicks arms t longOffset<<32 + offset ticks from now.
func (s *Subsystem) SetTicks(t *Timer, offset, longOffset uint32) {
	s.setOffset(t, uint64(longOffset)<<32|uint64(offset))
}

// SetAbsolute arms t for the next time the 32 bit tick clock reads target.
// A target half a clock period or more ahead is taken to be in the past and
// fires at once.
func (s *Subsystem) SetAbsolute(t *Timer, target Ticks32) {
	now := s.nowTicks64()
	diff := target.Diff(Ticks32(now))
	if diff >= 1<<31 {
		s.arm(t, now)
		return
	}
	s.arm(t, now+uint64(diff))
}

// SetAbsolute64 arms t for an absolute 64 bit tick time.
func (s *Subsystem) SetAbsolute64(t *Timer, target Ticks64) {
	s.arm(t, uint64(target))
}

func (s *Subsystem) setOffset(t *Timer, ticks uint64) {
	s.arm(t, s.nowTicks64()+ticks)
}

// arm links t at the absolute tick time abs. Targets within Backoff of now
// are spun to on the calling goroutine, targets already reached fire at once;
// both run the callback in the caller's context.
func (s *Subsystem) arm(t *Timer, abs uint64) {
	now := s.nowTicks64()
	switch {
	case abs <= now:
		s.Remove(t)
		st := s.irq.disable()
		s.trace.record(TraceImmediate, now, abs)
		s.irq.restore(st)
		s.stats.immediate.Add(1)
		s.stats.fired.Add(1)
		s.shoot(t.Callback, t.Arg)
		return
	case abs-now < uint64(s.cfg.Backoff):
		s.Remove(t)
		st := s.irq.disable()
		s.trace.record(TraceSpin, now, abs)
		s.irq.restore(st)
		s.stats.spins.Add(1)
		s.spinUntil(abs)
		s.stats.fired.Add(1)
		s.shoot(t.Callback, t.Arg)
		return
	}

	st := s.irq.disable()
	s.unlinkLocked(t)
	t.setExpiry(abs)
	s.insertLocked(t)
	s.stats.sets.Add(1)
	s.trace.record(TraceSet, now, abs)
	if s.head == t {
		s.programLocked()
	}
	s.irq.restore(st)
}

// Remove disarms t. It reports false when t was not linked, which includes
// timers that already fired.
func (s *Subsystem) Remove(t *Timer) bool {
	st := s.irq.disable()
	defer s.irq.restore(st)

	wasHead := s.head == t
	if !s.unlinkLocked(t) {
		return false
	}
	s.stats.removes.Add(1)
	s.trace.record(TraceRemove, s.nowTicks64(), t.expires())
	if wasHead {
		s.programLocked()
	}
	return true
}

// IsSet reports whether t is waiting in the list.
func (s *Subsystem) IsSet(t *Timer) bool {
	st := s.irq.disable()
	defer s.irq.restore(st)
	return t.active
}

// LeftUsec returns the microseconds until t fires, zero when it is not set.
func (s *Subsystem) LeftUsec(t *Timer) uint64 {
	st := s.irq.disable()
	active, abs := t.active, t.expires()
	s.irq.restore(st)
	if !active {
		return 0
	}
	now := s.nowTicks64()
	if abs <= now {
		return 0
	}
	return s.conv.UsecFromTicks64(abs - now)
}

// Spin busy-waits for us microseconds.
func (s *Subsystem) Spin(us uint32) {
	s.SpinTicks(s.conv.TicksFromUsecCeil(us))
}

// SpinTicks busy-waits for ticks counter ticks.
func (s *Subsystem) SpinTicks(ticks uint32) {
	s.spinUntil(s.nowTicks64() + uint64(ticks))
}

func (s *Subsystem) spinUntil(abs uint64) {
	for {
		now := s.nowTicks64()
		if now >= abs {
			return
		}
		if s.spin != nil {
			s.spin.Spin(uint32(min(abs-now, uint64(s.mask))))
		}
	}
}

// insertLocked links t after every timer that expires no later than it.
func (s *Subsystem) insertLocked(t *Timer) {
	t.active = true
	s.active++

	if s.head == nil || t.before(s.head) {
		t.next = s.head
		s.head = t
		return
	}
	cur := s.head
	for cur.next != nil && !t.before(cur.next) {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

func (s *Subsystem) unlinkLocked(t *Timer) bool {
	if !t.active {
		return false
	}
	if s.head == t {
		s.head = t.next
	} else {
		for cur := s.head; cur != nil; cur = cur.next {
			if cur.next == t {
				cur.next = t.next
				break
			}
		}
	}
	t.next = nil
	t.active = false
	s.active--
	return true
}

// programLocked arms the compare channel for the list head, corrected by
// Overhead and kept at least ISRBackoff ticks ahead of now. A head beyond the
// current counter period, or an empty list, parks the channel on the first
// tick of the next period so every wrap is observed. The armed value is never
// more than half a period ahead; backends take anything further as already
// passed.
func (s *Subsystem) programLocked() {
	if s.inHandler {
		return
	}
	now := s.nowTicks64()
	next := (now | uint64(s.mask)) + 1

	if s.head != nil {
		target := s.head.expires()
		if target > uint64(s.cfg.Overhead) {
			target -= uint64(s.cfg.Overhead)
		}
		if earliest := now + uint64(max(s.cfg.ISRBackoff, 1)); target < earliest {
			target = earliest
		}
		next = min(next, target)
	}
	next = min(next, now+uint64(s.mask/2))
	s.hw.SetAbsolute(uint32(next) & s.mask)
}

// handleInterrupt is the compare-match handler. It fires every timer within
// ISRBackoff of now, spinning to each exact target, and arms the channel
// once at the end. The lock is released while a callback runs so callbacks
// may set and remove timers.
func (s *Subsystem) handleInterrupt() {
	st := s.irq.disable()
	s.inHandler = true

	now := s.nowTicks64()
	if p := now &^ uint64(s.mask); p != s.period {
		s.period = p
		s.stats.overflows.Add(1)
		s.trace.record(TraceOverflow, now, now>>32)
	}

	for s.head != nil {
		t := s.head
		target := t.expires()
		if target > now && target-now > uint64(s.cfg.ISRBackoff) {
			break
		}
		if target > now {
			s.spinUntil(target)
			now = s.nowTicks64()
		}
		if late := now - target; late > 0 {
			s.stats.noteLate(late)
			s.log.Tracef("timer late by %d ticks", late)
		}

		s.head = t.next
		t.next = nil
		t.active = false
		s.active--
		s.stats.fired.Add(1)
		s.trace.record(TraceFire, now, target)
		cb, arg := t.Callback, t.Arg

		s.irq.restore(st)
		s.shoot(cb, arg)
		st = s.irq.disable()
		now = s.nowTicks64()
	}

	s.inHandler = false
	s.programLocked()
	s.irq.restore(st)
}

// shoot runs cb in the context its type asks for.
func (s *Subsystem) shoot(cb Callback, arg any) {
	switch fn := cb.(type) {
	case ISRFunc:
		fn(arg)
	case ThreadFunc:
		if !s.deferred.push(fn, arg) {
			s.log.Warnf("dropping thread callback: %v", ErrClosed)
		}
	}
}
