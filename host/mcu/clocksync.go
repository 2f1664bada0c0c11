package mcu

import (
	"context"
	"errors"
	"time"
)

var ErrFewSamples = errors.New("mcu: need at least two clock samples")

type clockSample struct {
	host  time.Time
	ticks uint64
}

// ClockSync estimates the device counter rate against the host clock.
type ClockSync struct {
	client  *Client
	now     func() time.Time
	samples []clockSample
}

func NewClockSync(c *Client) *ClockSync {
	return &ClockSync{client: c, now: time.Now}
}

// Sample pairs one device uptime reading with the host time halfway through
// the round trip.
func (s *ClockSync) Sample(ctx context.Context) error {
	sent := s.now()
	ticks, err := s.client.GetUptime(ctx)
	if err != nil {
		return err
	}
	recv := s.now()
	s.samples = append(s.samples, clockSample{
		host:  sent.Add(recv.Sub(sent) / 2),
		ticks: ticks,
	})
	return nil
}

func (s *ClockSync) Samples() int { return len(s.samples) }

// Frequency returns the least squares slope of device ticks over host
// seconds.
func (s *ClockSync) Frequency() (float64, error) {
	n := len(s.samples)
	if n < 2 {
		return 0, ErrFewSamples
	}
	base := s.samples[0]
	var sx, sy, sxx, sxy float64
	for _, smp := range s.samples {
		x := smp.host.Sub(base.host).Seconds()
		y := float64(smp.ticks - base.ticks)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	fn := float64(n)
	den := fn*sxx - sx*sx
	if den == 0 {
		return 0, ErrFewSamples
	}
	return (fn*sxy - sx*sy) / den, nil
}

// DriftPPM compares the measured rate with the nominal one.
func (s *ClockSync) DriftPPM(nominal uint32) (float64, error) {
	f, err := s.Frequency()
	if err != nil {
		return 0, err
	}
	return (f - float64(nominal)) / float64(nominal) * 1e6, nil
}
