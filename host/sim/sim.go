// Package sim runs a timer subsystem on the host clock together with a
// device endpoint and a host client talking to it over an in-process link.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tickos/config"
	"tickos/device"
	"tickos/event"
	"tickos/evtimer"
	"tickos/host/mcu"
	"tickos/metrics"
	"tickos/periph"
	"tickos/xtimer"
)

var ErrBadOptions = errors.New("sim: invalid options")

type Options struct {
	Profile  *config.Profile
	Duration time.Duration
	// PeriodUs is the interval of the periodic wakeup loop.
	PeriodUs uint32
	// EventMs is the interval of the recurring evtimer event.
	EventMs uint32
	// SampleEvery is how often the host client samples the device clock.
	SampleEvery time.Duration
	// MetricsListen serves /metrics when not empty.
	MetricsListen string
	Logger        logging.LoggerFactory
	// Trace dumps the timer trace ring here at the end of the run.
	Trace io.Writer
}

// Report summarizes one run.
type Report struct {
	Wakeups    int
	MeanLateUs float64
	MaxLateUs  uint64
	StdLateUs  float64
	Events     int
	Samples    int
	DriftPPM   float64
	Device     mcu.TimerStats
	Config     mcu.TimerConfig
	Local      xtimer.Stats
}

func (o *Options) check() error {
	if o.Profile == nil {
		o.Profile = config.Default()
	}
	if o.Logger == nil {
		o.Logger = o.Profile.LoggerFactory(io.Discard)
	}
	if o.SampleEvery == 0 {
		o.SampleEvery = 50 * time.Millisecond
	}
	switch {
	case o.Duration <= 0:
		return fmt.Errorf("%w: duration %v", ErrBadOptions, o.Duration)
	case o.PeriodUs == 0:
		return fmt.Errorf("%w: zero period", ErrBadOptions)
	case o.EventMs == 0:
		return fmt.Errorf("%w: zero event interval", ErrBadOptions)
	}
	return o.Profile.Validate()
}

type lateness struct {
	mu       sync.Mutex
	n        int
	sum, sq  float64
	max      uint64
	observer *metrics.Wakeup
}

func (l *lateness) add(us uint64) {
	l.mu.Lock()
	l.n++
	v := float64(us)
	l.sum += v
	l.sq += v * v
	l.max = max(l.max, us)
	l.mu.Unlock()
	l.observer.Observe(us)
}

// Run drives the simulation until the duration elapses or ctx is done.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	log := opts.Logger.NewLogger("sim")
	tc := opts.Profile.TimerConfig()

	hw, err := periph.NewHost(tc.HZ, tc.Width)
	if err != nil {
		return nil, err
	}
	sub, err := xtimer.New(hw, tc, xtimer.WithLoggerFactory(opts.Logger))
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	reg := device.NewRegistry()
	if err := device.RegisterTimer(reg, sub); err != nil {
		return nil, err
	}
	hostEnd, devEnd := net.Pipe()
	linkCtx, stopLink := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- device.NewEndpoint(reg, device.WithLoggerFactory(opts.Logger)).Serve(linkCtx, devEnd)
	}()
	defer func() {
		stopLink()
		<-served
	}()

	client, err := mcu.Connect(ctx, hostEnd, mcu.WithLoggerFactory(opts.Logger))
	if err != nil {
		return nil, fmt.Errorf("sim: connect: %w", err)
	}
	defer client.Close()

	wake := metrics.NewWakeup()
	promReg := prometheus.NewRegistry()
	if err := metrics.Register(promReg, append(wake.Collectors(),
		metrics.NewTimerCollector(sub, prometheus.Labels{"backend": "host"}))...); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	late := &lateness{observer: wake}
	g.Go(func() error {
		periodTicks := sub.Converter().TicksFromUsec(opts.PeriodUs)
		last := sub.NowTicks()
		for gctx.Err() == nil {
			sub.PeriodicWakeup(&last, opts.PeriodUs)
			behind := uint32(sub.NowTicks() - last)
			if behind < periodTicks {
				late.add(sub.Converter().UsecFromTicks64(uint64(behind)))
			}
		}
		return nil
	})

	queue := event.NewQueue()
	events := 0
	tick := event.NewCallback(func(any) { events++ }, nil)
	var stopped atomic.Bool
	var et *evtimer.Evtimer
	et = evtimer.New(sub, func(ev *evtimer.Event) {
		queue.Post(&tick.Event)
		if stopped.Load() {
			return
		}
		if err := et.Add(ev); err != nil {
			log.Warnf("requeue: %v", err)
		}
	}, evtimer.WithLoggerFactory(opts.Logger))
	recurring := &evtimer.Event{Offset: opts.EventMs}
	if err := et.Add(recurring); err != nil {
		return nil, err
	}
	g.Go(func() error { return ignoreStop(queue.Loop(gctx)) })

	cs := mcu.NewClockSync(client)
	g.Go(func() error {
		t := time.NewTicker(opts.SampleEvery)
		defer t.Stop()
		for {
			if err := cs.Sample(gctx); err != nil {
				return ignoreStop(err)
			}
			select {
			case <-t.C:
			case <-gctx.Done():
				return nil
			}
		}
	})

	if opts.MetricsListen != "" {
		srv := &http.Server{
			Addr:              opts.MetricsListen,
			Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Infof("serving metrics on %s", opts.MetricsListen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	stopped.Store(true)
	et.Del(recurring)
	if err != nil {
		return nil, err
	}

	rep := &Report{Events: events, Samples: cs.Samples(), Local: sub.Stats()}
	late.mu.Lock()
	rep.Wakeups = late.n
	rep.MaxLateUs = late.max
	if late.n > 0 {
		rep.MeanLateUs = late.sum / float64(late.n)
		rep.StdLateUs = math.Sqrt(math.Max(0, late.sq/float64(late.n)-rep.MeanLateUs*rep.MeanLateUs))
	}
	late.mu.Unlock()

	if ppm, err := cs.DriftPPM(tc.HZ); err == nil {
		rep.DriftPPM = ppm
	}
	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()
	if rep.Device, err = client.GetTimerStats(qctx); err != nil {
		return nil, err
	}
	if rep.Config, err = client.GetConfig(qctx); err != nil {
		return nil, err
	}
	if opts.Trace != nil {
		if err := sub.DumpTrace(opts.Trace); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func ignoreStop(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Print writes the report in the timing log format.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "[TIMING] wakeups=%d late mean=%.1fus std=%.1fus max=%dus\n",
		r.Wakeups, r.MeanLateUs, r.StdLateUs, r.MaxLateUs)
	fmt.Fprintf(w, "[TIMING] evtimer events=%d\n", r.Events)
	fmt.Fprintf(w, "[TIMING] clock samples=%d drift=%.1fppm\n", r.Samples, r.DriftPPM)
	fmt.Fprintf(w, "[TIMING] device hz=%d width=%d backoff=%d isr_backoff=%d overhead=%d\n",
		r.Config.HZ, r.Config.Width, r.Config.Backoff, r.Config.ISRBackoff, r.Config.Overhead)
	fmt.Fprintf(w, "[TIMING] device active=%d fired=%d late=%d spins=%d overflows=%d\n",
		r.Device.Active, r.Device.Fired, r.Device.Late, r.Device.Spins, r.Device.Overflows)
}
