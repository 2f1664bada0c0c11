package xtimer

import (
	"fmt"
	"strings"

	"tickos/periph"
)

// Config holds the platform tuning of a timer subsystem. Every threshold is
// in counter ticks. The numbers are measured per board; the defaults are only
// a starting point.
type Config struct {
	HZ    uint32 // counter frequency
	Width uint   // counter width in bits

	// Backoff is the distance from now below which Set spins instead of
	// arming the compare channel.
	Backoff uint32
	// ISRBackoff is the distance below which the fire path spins to a
	// timer's exact tick instead of re-arming for it.
	ISRBackoff uint32
	// Overhead is subtracted from a target before it is armed to absorb
	// interrupt entry latency.
	Overhead uint32

	// PeriodicSpin and PeriodicRelative tune PeriodicWakeup: below the first
	// it spins, below the second it arms a relative timer.
	PeriodicSpin     uint32
	PeriodicRelative uint32
}

// Defaults at 1 MHz
const (
	DefaultBackoff          = 30
	DefaultISRBackoff       = 20
	DefaultOverhead         = 20
	DefaultPeriodicRelative = 512
)

// DefaultConfig returns the stock tuning scaled to a counter frequency.
func DefaultConfig(hz uint32, width uint) Config {
	cfg := Config{
		HZ:               hz,
		Width:            width,
		Backoff:          DefaultBackoff,
		ISRBackoff:       DefaultISRBackoff,
		Overhead:         DefaultOverhead,
		PeriodicRelative: DefaultPeriodicRelative,
	}
	if conv, err := NewConverter(hz); err == nil && conv.Slower() {
		// slow crystals: a handful of ticks is already tens of microseconds
		cfg.Backoff = 5
		cfg.ISRBackoff = 5
		cfg.Overhead = 0
		cfg.PeriodicRelative = conv.TicksFromUsecCeil(DefaultPeriodicRelative)
	} else if err == nil {
		cfg.Backoff = conv.TicksFromUsec(DefaultBackoff)
		cfg.ISRBackoff = conv.TicksFromUsec(DefaultISRBackoff)
		cfg.Overhead = conv.TicksFromUsec(DefaultOverhead)
		cfg.PeriodicRelative = conv.TicksFromUsec(DefaultPeriodicRelative)
	}
	cfg.PeriodicSpin = 2 * cfg.Backoff
	return cfg
}

// ConfigError lists every problem found in a Config.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "xtimer: invalid config: " + e.Problems[0]
	}
	var b strings.Builder
	b.WriteString("xtimer: invalid config:")
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, p)
	}
	return b.String()
}

// Validate checks that the combination can be scheduled safely. Errors are
// accumulated so one pass shows all of them.
func (c Config) Validate() error {
	var problems []string

	if _, err := NewConverter(c.HZ); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Width {
	case 16, 24, 32:
	default:
		problems = append(problems, fmt.Sprintf("width %d not one of 16, 24, 32", c.Width))
	}
	if c.Backoff == 0 {
		problems = append(problems, "backoff must be at least one tick")
	}
	if c.ISRBackoff > c.Backoff {
		problems = append(problems, fmt.Sprintf("isr_backoff %d exceeds backoff %d", c.ISRBackoff, c.Backoff))
	}
	if c.Overhead >= c.Backoff && c.Backoff != 0 {
		problems = append(problems, fmt.Sprintf("overhead %d must be below backoff %d", c.Overhead, c.Backoff))
	}
	if c.Width >= 16 && c.Width <= 32 {
		half := periph.Mask(c.Width)/2 + 1
		if c.Backoff >= half || c.ISRBackoff >= half {
			problems = append(problems, fmt.Sprintf("backoff thresholds must stay below half a counter period (%d ticks)", half))
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}
