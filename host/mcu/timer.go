package mcu

import (
	"context"
	"fmt"
)

// TimerStats mirrors the counters of the device timer subsystem.
type TimerStats struct {
	Active    uint32
	Fired     uint32
	Late      uint32
	Spins     uint32
	Overflows uint32
}

// TimerConfig is the tuning the device timer runs with, in ticks.
type TimerConfig struct {
	HZ         uint32
	Width      uint32
	Backoff    uint32
	ISRBackoff uint32
	Overhead   uint32
}

// GetClock returns the low 32 bits of the device tick counter.
func (c *Client) GetClock(ctx context.Context) (uint32, error) {
	vals, err := c.Query(ctx, "get_clock", "clock")
	if err != nil {
		return 0, err
	}
	return vals.Uint("clock")
}

// GetUptime returns the full 64-bit device tick count.
func (c *Client) GetUptime(ctx context.Context) (uint64, error) {
	vals, err := c.Query(ctx, "get_uptime", "uptime")
	if err != nil {
		return 0, err
	}
	high, err := vals.Uint("high")
	if err != nil {
		return 0, err
	}
	low, err := vals.Uint("clock")
	if err != nil {
		return 0, err
	}
	return uint64(high)<<32 | uint64(low), nil
}

func (c *Client) GetTimerStats(ctx context.Context) (TimerStats, error) {
	vals, err := c.Query(ctx, "get_timer_stats", "timer_stats")
	if err != nil {
		return TimerStats{}, err
	}
	var st TimerStats
	err = readUints(vals, map[string]*uint32{
		"active":    &st.Active,
		"fired":     &st.Fired,
		"late":      &st.Late,
		"spins":     &st.Spins,
		"overflows": &st.Overflows,
	})
	return st, err
}

func (c *Client) GetConfig(ctx context.Context) (TimerConfig, error) {
	vals, err := c.Query(ctx, "get_config", "config")
	if err != nil {
		return TimerConfig{}, err
	}
	var cfg TimerConfig
	err = readUints(vals, map[string]*uint32{
		"hz":          &cfg.HZ,
		"width":       &cfg.Width,
		"backoff":     &cfg.Backoff,
		"isr_backoff": &cfg.ISRBackoff,
		"overhead":    &cfg.Overhead,
	})
	return cfg, err
}

func readUints(vals map[string]any, dst map[string]*uint32) error {
	for name, p := range dst {
		v, ok := vals[name].(uint32)
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrBadResponse, name)
		}
		*p = v
	}
	return nil
}
