package device

import (
	"strconv"

	"tickos/protocol"
	"tickos/xtimer"
)

// Dictionary config keys
const (
	ConfigClockFreq  = "CLOCK_FREQ"
	ConfigTimerWidth = "TIMER_WIDTH"
	ConfigBackoff    = "TIMER_BACKOFF"
)

// RegisterTimer publishes sub's clock, tuning and statistics.
func RegisterTimer(reg *Registry, sub *xtimer.Subsystem) error {
	cfg := sub.Config()
	reg.SetConfig(ConfigClockFreq, strconv.FormatUint(uint64(cfg.HZ), 10))
	reg.SetConfig(ConfigTimerWidth, strconv.FormatUint(uint64(cfg.Width), 10))
	reg.SetConfig(ConfigBackoff, strconv.FormatUint(uint64(cfg.Backoff), 10))

	cmds := []struct {
		format string
		h      Handler
	}{
		{"clock clock=%u", nil},
		{"uptime high=%u clock=%u", nil},
		{"timer_stats active=%u fired=%u late=%u spins=%u overflows=%u", nil},
		{"config hz=%u width=%c backoff=%u isr_backoff=%u overhead=%u", nil},
		{"get_clock", func(r *Responder, _ protocol.Values) error {
			return r.Send("clock", uint32(sub.NowTicks()))
		}},
		{"get_uptime", func(r *Responder, _ protocol.Values) error {
			now := uint64(sub.NowTicks64())
			return r.Send("uptime", uint32(now>>32), uint32(now))
		}},
		{"get_timer_stats", func(r *Responder, _ protocol.Values) error {
			st := sub.Stats()
			return r.Send("timer_stats", st.Active, st.Fired, st.Late, st.Spins, st.Overflows)
		}},
		{"get_config", func(r *Responder, _ protocol.Values) error {
			return r.Send("config", cfg.HZ, cfg.Width, cfg.Backoff, cfg.ISRBackoff, cfg.Overhead)
		}},
	}
	for _, c := range cmds {
		if _, err := reg.Register(c.format, c.h); err != nil {
			return err
		}
	}
	return nil
}
