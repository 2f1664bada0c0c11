// Package periph describes the hardware timer a virtual timer subsystem runs on
package periph

import "errors"

var (
	ErrAlreadyInitialized = errors.New("periph: timer already initialized")
	ErrInvalidWidth       = errors.New("periph: counter width must be 16, 24 or 32 bits")
	ErrInvalidFrequency   = errors.New("periph: counter frequency must be non-zero")
)

// Timer is a free running hardware counter with one compare channel.
// Only the low Width() bits of Read and SetAbsolute are significant.
type Timer interface {
	// Init installs the compare-match handler. The handler runs in
	// interrupt context.
	Init(handler func()) error

	// Read returns the raw counter value
	Read() uint32

	// SetAbsolute arms the compare channel. The channel is one shot: it
	// fires the next time the counter equals value, then disarms.
	SetAbsolute(value uint32)

	// Clear disarms the compare channel
	Clear()

	// Frequency returns the counter rate in Hz
	Frequency() uint32

	// Width returns the counter width in bits
	Width() uint
}

// Spinner is implemented by counters that can burn ticks on demand instead
// of being busy-polled.
type Spinner interface {
	Spin(ticks uint32)
}

// Mask returns the raw counter mask for a counter width.
func Mask(width uint) uint32 {
	if width >= 32 {
		return 0xFFFFFFFF
	}
	return uint32(1)<<width - 1
}

func checkWidth(width uint) error {
	switch width {
	case 16, 24, 32:
		return nil
	}
	return ErrInvalidWidth
}
