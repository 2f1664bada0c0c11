package periph

import "sync"

// Sim is a counter whose time only moves when Advance or Spin is called.
// Compare matches are delivered synchronously on the advancing goroutine,
// stopping the counter exactly on the matching tick.
type Sim struct {
	mu      sync.Mutex
	hz      uint32
	width   uint
	mask    uint32
	counter uint32
	compare uint32
	armed   bool
	handler func()

	// running is set while the handler executes; matches that happen in
	// that window are latched in pending like an interrupt line would be.
	running bool
	pending bool

	elapsed uint64
	matches uint64
}

// NewSim creates a simulated counter.
func NewSim(hz uint32, width uint) (*Sim, error) {
	if hz == 0 {
		return nil, ErrInvalidFrequency
	}
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Sim{hz: hz, width: width, mask: Mask(width)}, nil
}

func (s *Sim) Init(handler func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return ErrAlreadyInitialized
	}
	s.handler = handler
	return nil
}

func (s *Sim) Read() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (s *Sim) SetAbsolute(value uint32) {
	s.mu.Lock()
	s.compare = value & s.mask
	s.armed = true
	s.mu.Unlock()
}

func (s *Sim) Clear() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

func (s *Sim) Frequency() uint32 { return s.hz }

func (s *Sim) Width() uint { return s.width }

// Set moves the raw counter without delivering matches. It is meant for
// placing the counter next to a wrap before a test starts.
func (s *Sim) Set(raw uint32) {
	s.mu.Lock()
	s.counter = raw & s.mask
	s.mu.Unlock()
}

// Compare reports the armed compare value.
func (s *Sim) Compare() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compare, s.armed
}

// Elapsed returns the total number of ticks advanced since creation.
func (s *Sim) Elapsed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Matches returns how many compare matches were delivered.
func (s *Sim) Matches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches
}

// Spin implements Spinner.
func (s *Sim) Spin(ticks uint32) {
	s.Advance(uint64(ticks))
}

// Advance moves the counter forward, firing the handler at every compare
// match on the way.
func (s *Sim) Advance(ticks uint64) {
	s.mu.Lock()
	for ticks > 0 {
		if !s.armed {
			s.step(ticks)
			break
		}
		dist := uint64((s.compare - s.counter) & s.mask)
		if dist == 0 {
			// compare equal to the counter matches one full period later
			dist = uint64(s.mask) + 1
		}
		if dist > ticks {
			s.step(ticks)
			break
		}
		s.step(dist)
		ticks -= dist
		s.armed = false
		s.matches++
		s.fireLocked()
	}
	s.mu.Unlock()
}

func (s *Sim) step(ticks uint64) {
	s.counter = uint32((uint64(s.counter) + ticks) & uint64(s.mask))
	s.elapsed += ticks
}

// fireLocked runs the handler with s.mu released. A match raised by a
// nested Advance while the handler runs is delivered once it returns.
func (s *Sim) fireLocked() {
	if s.running {
		s.pending = true
		return
	}
	s.running = true
	for {
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h()
		}
		s.mu.Lock()
		if !s.pending {
			break
		}
		s.pending = false
	}
	s.running = false
}
