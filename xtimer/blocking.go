package xtimer

import "tickos/kernel"

func unlockMutex(arg any) {
	arg.(*kernel.Mutex).Unlock()
}

// block arms a timer with set and waits for it. The timer unlocks a mutex
// the caller is queued on, so a timer that fires before the caller blocks
// is not lost.
func (s *Subsystem) block(set func(t *Timer)) {
	m := kernel.NewLockedMutex()
	t := Timer{Callback: ISRFunc(unlockMutex), Arg: m}
	set(&t)
	m.Lock()
}

// TSleep64 blocks the calling goroutine for ticks counter ticks, spinning
// when that is below Backoff.
func (s *Subsystem) TSleep64(ticks Ticks64) {
	if uint64(ticks) < uint64(s.cfg.Backoff) {
		s.SpinTicks(uint32(ticks))
		return
	}
	s.block(func(t *Timer) { s.setOffset(t, uint64(ticks)) })
}

// TSleep32 is TSleep64 for 32 bit tick counts.
func (s *Subsystem) TSleep32(ticks Ticks32) {
	s.TSleep64(Ticks64(ticks))
}

func (s *Subsystem) Usleep(us uint32) {
	s.Usleep64(uint64(us))
}

func (s *Subsystem) Usleep64(us uint64) {
	s.TSleep64(Ticks64(s.conv.TicksFromUsecCeil64(us)))
}

func (s *Subsystem) Msleep(ms uint32) {
	s.Usleep64(uint64(ms) * 1000)
}

func (s *Subsystem) Sleep(sec uint32) {
	s.Usleep64(uint64(sec) * 1000000)
}

// Nanosleep rounds ns up to whole microseconds.
func (s *Subsystem) Nanosleep(ns uint64) {
	s.Usleep64((ns + 999) / 1000)
}

// PeriodicWakeup blocks until periodUs after *last and advances *last by
// exactly one period, so late wakeups do not accumulate drift. A target that
// already passed returns at once. The period is truncated to whole ticks, so
// on a counter slower than 1 MHz the average period is at most one tick short.
func (s *Subsystem) PeriodicWakeup(last *Ticks32, periodUs uint32) {
	s.PeriodicWakeupTicks(last, s.conv.TicksFromUsec(periodUs))
}

// UsleepUntil is PeriodicWakeup under its older name.
func (s *Subsystem) UsleepUntil(last *Ticks32, us uint32) {
	s.PeriodicWakeup(last, us)
}

// PeriodicWakeupTicks is PeriodicWakeup with the period in ticks.
func (s *Subsystem) PeriodicWakeupTicks(last *Ticks32, period uint32) {
	target := *last + Ticks32(period)
	defer func() { *last = target }()

	now := s.NowTicks()
	if periodPassed(*last, target, now) {
		return
	}

	offset := target.Diff(now)
	switch {
	case offset < s.cfg.PeriodicSpin:
		s.SpinTicks(offset)
	case offset < s.cfg.PeriodicRelative:
		s.block(func(t *Timer) {
			// time spent since now was read comes off the offset
			left := target.Diff(s.NowTicks())
			if left >= 1<<31 {
				left = 0
			}
			s.setOffset(t, uint64(left))
		})
	default:
		s.block(func(t *Timer) { s.SetAbsolute(t, target) })
	}
}

// periodPassed reports whether target lies in [last, now] on the wrapping
// 32 bit clock.
func periodPassed(last, target, now Ticks32) bool {
	if now < last {
		// the clock wrapped between last and now
		return !(now < target && target < last)
	}
	return last <= target && target <= now
}
