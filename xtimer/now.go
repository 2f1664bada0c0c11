package xtimer

// nowTicks64 extends the raw counter to 64 bits. It reads the clock word,
// the counter, and the word again, retrying until both reads of the word
// agree. A raw value below the last observation means the counter wrapped,
// so the period is folded forward before the new value is published.
// It takes no lock and is safe from the fire path.
func (s *Subsystem) nowTicks64() uint64 {
	mask := uint64(s.mask)
	for {
		before := s.clock.Load()
		raw := uint64(s.hw.Read()) & mask
		if s.clock.Load() != before {
			continue
		}
		now := before&^mask | raw
		if now < before {
			now += mask + 1
		}
		if now == before || s.clock.CompareAndSwap(before, now) {
			return now
		}
	}
}

// NowTicks returns the low 32 bits of the tick clock.
func (s *Subsystem) NowTicks() Ticks32 {
	return Ticks32(s.nowTicks64())
}

// NowTicks64 returns the 64 bit tick clock.
func (s *Subsystem) NowTicks64() Ticks64 {
	return Ticks64(s.nowTicks64())
}

// Now returns the wrapping 32 bit microsecond clock.
func (s *Subsystem) Now() uint32 {
	return uint32(s.Now64())
}

// Now64 returns microseconds since the subsystem started counting.
func (s *Subsystem) Now64() uint64 {
	return s.conv.UsecFromTicks64(s.nowTicks64())
}

// LongCount is the number of times the 32 bit tick clock has wrapped.
func (s *Subsystem) LongCount() uint32 {
	return uint32(s.nowTicks64() >> 32)
}

// HighCount holds the bits of the 32 bit tick clock above the counter
// width. It is always zero on 32 bit counters.
func (s *Subsystem) HighCount() uint32 {
	return uint32(s.nowTicks64()) &^ s.mask
}
