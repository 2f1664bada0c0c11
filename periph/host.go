package periph

import (
	"sync"
	"time"
)

// Host is a counter derived from the monotonic wall clock. Compare matches
// are delivered from a runtime timer goroutine; handler invocations never
// overlap.
type Host struct {
	hz    uint32
	width uint
	mask  uint32
	start time.Time

	mu      sync.Mutex
	handler func()
	pending *time.Timer
	gen     uint64

	isr sync.Mutex
}

// NewHost creates a wall-clock counter.
func NewHost(hz uint32, width uint) (*Host, error) {
	if hz == 0 {
		return nil, ErrInvalidFrequency
	}
	if err := checkWidth(width); err != nil {
		return nil, err
	}
	return &Host{hz: hz, width: width, mask: Mask(width), start: time.Now()}, nil
}

func (h *Host) Init(handler func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handler != nil {
		return ErrAlreadyInitialized
	}
	h.handler = handler
	return nil
}

func (h *Host) ticks() uint64 {
	d := time.Since(h.start)
	sec := uint64(d / time.Second)
	ns := uint64(d % time.Second)
	return sec*uint64(h.hz) + ns*uint64(h.hz)/uint64(time.Second)
}

func (h *Host) Read() uint32 {
	return uint32(h.ticks()) & h.mask
}

func (h *Host) SetAbsolute(value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending != nil {
		h.pending.Stop()
	}
	h.gen++
	gen := h.gen

	now := uint32(h.ticks()) & h.mask
	dist := uint64((value - now) & h.mask)
	if dist == 0 {
		dist = uint64(h.mask) + 1
	} else if dist > uint64(h.mask/2) {
		// the counter ran past value while the caller computed it
		dist = 0
	}
	// round up so the match is never delivered before the counter gets there
	wait := time.Duration((dist*uint64(time.Second) + uint64(h.hz) - 1) / uint64(h.hz))
	h.pending = time.AfterFunc(wait, func() { h.fire(gen) })
}

func (h *Host) fire(gen uint64) {
	h.isr.Lock()
	defer h.isr.Unlock()

	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.pending = nil
	handler := h.handler
	h.mu.Unlock()

	if handler != nil {
		handler()
	}
}

func (h *Host) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
	h.gen++
}

func (h *Host) Frequency() uint32 { return h.hz }

func (h *Host) Width() uint { return h.width }
