package xtimer

import (
	"errors"
	"fmt"
	"math/bits"
)

// BaseHZ is the rate the public API speaks in: one tick per microsecond.
const BaseHZ = 1000000

var ErrUnsupportedFrequency = errors.New("xtimer: no exact tick conversion for frequency")

// Strategy is the arithmetic used to move between ticks and microseconds.
type Strategy uint8

const (
	// StrategyIdentity is used when the counter runs at exactly 1 MHz
	StrategyIdentity Strategy = iota
	// StrategyShift is used when the counter runs at 1 MHz shifted left or right
	StrategyShift
	// StrategyFraction covers rates where 1e6/hz reduces to n / 2^s,
	// e.g. 32768 Hz crystals (15625 / 512)
	StrategyFraction
)

func (s Strategy) String() string {
	switch s {
	case StrategyIdentity:
		return "identity"
	case StrategyShift:
		return "shift"
	case StrategyFraction:
		return "fraction"
	}
	return "unknown"
}

// Converter maps between counter ticks and microseconds. It is chosen once
// for a counter frequency and is immutable afterwards.
type Converter struct {
	hz       uint32
	strategy Strategy

	// StrategyShift: counter is faster than 1 MHz when up is set
	shift uint
	up    bool

	// StrategyFraction: usec = ticks * num >> den
	num uint64
	den uint
}

// NewConverter picks the conversion for hz or reports that no exact one
// exists.
func NewConverter(hz uint32) (Converter, error) {
	c := Converter{hz: hz}
	switch {
	case hz == 0:
		return c, fmt.Errorf("%w: 0 Hz", ErrUnsupportedFrequency)
	case hz == BaseHZ:
		c.strategy = StrategyIdentity
		return c, nil
	case hz > BaseHZ && hz%BaseHZ == 0 && isPow2(uint64(hz/BaseHZ)):
		c.strategy = StrategyShift
		c.up = true
		c.shift = uint(bits.TrailingZeros32(hz / BaseHZ))
		return c, nil
	case hz < BaseHZ && BaseHZ%hz == 0 && isPow2(uint64(BaseHZ/hz)):
		c.strategy = StrategyShift
		c.shift = uint(bits.TrailingZeros32(BaseHZ / hz))
		return c, nil
	}

	g := gcd(BaseHZ, uint64(hz))
	num, den := BaseHZ/g, uint64(hz)/g
	if !isPow2(den) {
		return c, fmt.Errorf("%w: %d Hz", ErrUnsupportedFrequency, hz)
	}
	c.strategy = StrategyFraction
	c.num = num
	c.den = uint(bits.TrailingZeros64(den))
	return c, nil
}

// MustConverter is NewConverter for frequencies fixed at build time.
func MustConverter(hz uint32) Converter {
	c, err := NewConverter(hz)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Converter) HZ() uint32 { return c.hz }

func (c Converter) Strategy() Strategy { return c.strategy }

// Slower reports whether one tick is longer than one microsecond.
func (c Converter) Slower() bool { return c.hz < BaseHZ }

func (c Converter) TicksFromUsec(us uint32) uint32 {
	return uint32(c.TicksFromUsec64(uint64(us)))
}

func (c Converter) UsecFromTicks(ticks uint32) uint32 {
	return uint32(c.UsecFromTicks64(uint64(ticks)))
}

func (c Converter) TicksFromUsec64(us uint64) uint64 {
	switch c.strategy {
	case StrategyShift:
		if c.up {
			return us << c.shift
		}
		return us >> c.shift
	case StrategyFraction:
		return mulDivPow2(us, c.den, c.num, false)
	}
	return us
}

func (c Converter) UsecFromTicks64(ticks uint64) uint64 {
	switch c.strategy {
	case StrategyShift:
		if c.up {
			return ticks >> c.shift
		}
		return ticks << c.shift
	case StrategyFraction:
		hi, lo := bits.Mul64(ticks, c.num)
		if c.den == 0 {
			return lo
		}
		return hi<<(64-c.den) | lo>>c.den
	}
	return ticks
}

// TicksFromUsecCeil rounds up to the next whole tick, so a delay converted
// with it is never shorter than requested.
func (c Converter) TicksFromUsecCeil(us uint32) uint32 {
	return uint32(c.TicksFromUsecCeil64(uint64(us)))
}

func (c Converter) TicksFromUsecCeil64(us uint64) uint64 {
	switch c.strategy {
	case StrategyShift:
		if c.up {
			return us << c.shift
		}
		return (us + (1 << c.shift) - 1) >> c.shift
	case StrategyFraction:
		return mulDivPow2(us, c.den, c.num, true)
	}
	return us
}

// mulDivPow2 returns (v << shift) / div using a 128 bit intermediate,
// saturating on overflow.
func mulDivPow2(v uint64, shift uint, div uint64, ceil bool) uint64 {
	var hi, lo uint64
	if shift == 0 {
		lo = v
	} else {
		hi, lo = v>>(64-shift), v<<shift
	}
	if hi >= div {
		return ^uint64(0)
	}
	q, r := bits.Div64(hi, lo, div)
	if ceil && r != 0 && q != ^uint64(0) {
		q++
	}
	return q
}

func isPow2(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
