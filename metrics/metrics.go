// Package metrics exports timer subsystem statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tickos/xtimer"
)

const namespace = "tickos"

// StatsSource is implemented by *xtimer.Subsystem.
type StatsSource interface {
	Stats() xtimer.Stats
}

// TimerCollector reads a fresh snapshot on every scrape.
type TimerCollector struct {
	src StatsSource

	active    *prometheus.Desc
	sets      *prometheus.Desc
	removes   *prometheus.Desc
	fired     *prometheus.Desc
	spins     *prometheus.Desc
	immediate *prometheus.Desc
	late      *prometheus.Desc
	overflows *prometheus.Desc
	maxLate   *prometheus.Desc
}

// NewTimerCollector describes src; labels are attached to every series.
func NewTimerCollector(src StatsSource, labels prometheus.Labels) *TimerCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "timer", name), help, nil, labels)
	}
	return &TimerCollector{
		src:       src,
		active:    desc("active", "Timers currently armed."),
		sets:      desc("sets_total", "Timers armed."),
		removes:   desc("removes_total", "Armed timers removed before expiry."),
		fired:     desc("fired_total", "Timer callbacks run."),
		spins:     desc("spins_total", "Timers served by busy waiting."),
		immediate: desc("immediate_total", "Timers set in the past and fired at once."),
		late:      desc("late_total", "Timers fired after their target tick."),
		overflows: desc("overflows_total", "Hardware counter periods completed."),
		maxLate:   desc("max_late_ticks", "Worst lateness seen, in counter ticks."),
	}
}

func (c *TimerCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.active, c.sets, c.removes, c.fired, c.spins, c.immediate, c.late, c.overflows, c.maxLate} {
		ch <- d
	}
}

func (c *TimerCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.active, float64(st.Active))
	counter(c.sets, st.Sets)
	counter(c.removes, st.Removes)
	counter(c.fired, st.Fired)
	counter(c.spins, st.Spins)
	counter(c.immediate, st.Immediate)
	counter(c.late, st.Late)
	counter(c.overflows, st.Overflows)
	gauge(c.maxLate, float64(st.MaxLateTicks))
}

// Wakeup tracks how far periodic wakeups land from their targets.
type Wakeup struct {
	Jitter  prometheus.Histogram
	Wakeups prometheus.Counter
}

func NewWakeup() *Wakeup {
	return &Wakeup{
		Jitter: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wakeup",
			Name:      "jitter_seconds",
			Help:      "Distance between a periodic wakeup and its target.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 16),
		}),
		Wakeups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wakeup",
			Name:      "total",
			Help:      "Periodic wakeups observed.",
		}),
	}
}

// Observe records one wakeup that landed lateUs microseconds after its
// target.
func (w *Wakeup) Observe(lateUs uint64) {
	w.Wakeups.Inc()
	w.Jitter.Observe(float64(lateUs) / 1e6)
}

// Register adds the collectors to reg.
func Register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *Wakeup) Collectors() []prometheus.Collector {
	return []prometheus.Collector{w.Jitter, w.Wakeups}
}
