package xtimer

import "tickos/kernel"

func cancelLock(arg any) {
	arg.(*kernel.MutexCancel).Cancel()
}

// MutexLockTimeout locks m, giving up after us microseconds. It returns 0
// with m held or -1 on timeout. When the mutex is handed over on the tick
// the timeout expires the lock wins.
func (s *Subsystem) MutexLockTimeout(m *kernel.Mutex, us uint64) int {
	if m.TryLock() {
		return 0
	}
	ticks := s.conv.TicksFromUsecCeil64(us)
	if ticks < uint64(s.cfg.Backoff) {
		deadline := s.nowTicks64() + ticks
		for {
			if m.TryLock() {
				return 0
			}
			now := s.nowTicks64()
			if now >= deadline {
				return -1
			}
			if s.spin != nil {
				s.spin.Spin(1)
			}
		}
	}

	mc := m.NewCancel()
	t := Timer{Callback: ISRFunc(cancelLock), Arg: mc}
	s.setOffset(&t, ticks)
	if err := m.LockCancelable(mc); err != nil {
		return -1
	}
	s.Remove(&t)
	return 0
}
