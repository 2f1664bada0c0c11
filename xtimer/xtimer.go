// Package xtimer multiplexes any number of virtual timers onto the single
// compare channel of a hardware counter and extends the counter to a
// monotonic 64 bit clock.
package xtimer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"

	"tickos/periph"
)

var ErrClosed = errors.New("xtimer: subsystem closed")

// Subsystem owns the timer list, the long counter and the backend it was
// created on. Several subsystems may coexist, each on its own backend.
type Subsystem struct {
	hw   periph.Timer
	spin periph.Spinner // nil when the backend has to be polled
	cfg  Config
	conv Converter
	mask uint32

	irq       irqLock
	head      *Timer
	active    int
	inHandler bool
	period    uint64 // period bits last seen by the fire path

	// clock packs the last observed 64 bit tick value: long count in the
	// top word, high count and raw bits below it.
	clock atomic.Uint64

	deferred *deferredQueue
	stats    statCounters
	trace    *traceRing
	log      logging.LeveledLogger

	closeOnce sync.Once
}

// Option customizes a Subsystem
type Option func(*Subsystem) error

// WithLogger sets the logger used by the subsystem.
func WithLogger(log logging.LeveledLogger) Option {
	return func(s *Subsystem) error {
		s.log = log
		return nil
	}
}

// WithLoggerFactory creates the subsystem logger from f.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(s *Subsystem) error {
		s.log = f.NewLogger("xtimer")
		return nil
	}
}

// WithTraceRing sets the number of scheduling events kept for DumpTrace.
// Zero disables tracing.
func WithTraceRing(n int) Option {
	return func(s *Subsystem) error {
		if n < 0 {
			return fmt.Errorf("xtimer: trace ring size %d", n)
		}
		s.trace = newTraceRing(n)
		return nil
	}
}

// WithDeferredQueue sizes the queue of thread callbacks waiting for the
// task goroutine.
func WithDeferredQueue(n int) Option {
	return func(s *Subsystem) error {
		if n <= 0 {
			return fmt.Errorf("xtimer: deferred queue size %d", n)
		}
		s.deferred = newDeferredQueue(n)
		return nil
	}
}

// New takes over hw and starts the subsystem. HZ and Width left zero in cfg
// are taken from the backend; set values must match it.
func New(hw periph.Timer, cfg Config, opts ...Option) (*Subsystem, error) {
	if cfg.HZ == 0 {
		cfg.HZ = hw.Frequency()
	}
	if cfg.Width == 0 {
		cfg.Width = hw.Width()
	}
	if cfg.HZ != hw.Frequency() || cfg.Width != hw.Width() {
		return nil, fmt.Errorf("xtimer: config %d Hz/%d bit does not match backend %d Hz/%d bit",
			cfg.HZ, cfg.Width, hw.Frequency(), hw.Width())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conv, err := NewConverter(cfg.HZ)
	if err != nil {
		return nil, err
	}

	s := &Subsystem{
		hw:    hw,
		cfg:   cfg,
		conv:  conv,
		mask:  periph.Mask(cfg.Width),
		trace: newTraceRing(DefaultTraceSize),
	}
	s.spin, _ = hw.(periph.Spinner)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.log == nil {
		s.log = logging.NewDefaultLoggerFactory().NewLogger("xtimer")
	}
	if s.deferred == nil {
		s.deferred = newDeferredQueue(16)
	}

	s.clock.Store(uint64(hw.Read() & s.mask))
	if err := hw.Init(s.handleInterrupt); err != nil {
		return nil, fmt.Errorf("xtimer: init backend: %w", err)
	}
	go s.deferred.run(s.log)

	st := s.irq.disable()
	s.programLocked()
	s.irq.restore(st)

	s.log.Debugf("started: %d Hz, %d bit, %s conversion, backoff=%d isr_backoff=%d overhead=%d",
		cfg.HZ, cfg.Width, conv.Strategy(), cfg.Backoff, cfg.ISRBackoff, cfg.Overhead)
	return s, nil
}

// Config returns the tuning the subsystem runs with.
func (s *Subsystem) Config() Config { return s.cfg }

// Converter returns the tick converter for the backend frequency.
func (s *Subsystem) Converter() Converter { return s.conv }

// Close disarms the compare channel and stops the task goroutine. Pending
// timers never fire afterwards.
func (s *Subsystem) Close() error {
	s.closeOnce.Do(func() {
		st := s.irq.disable()
		for t := s.head; t != nil; {
			next := t.next
			t.next = nil
			t.active = false
			t = next
		}
		s.head = nil
		s.active = 0
		s.hw.Clear()
		s.irq.restore(st)
		s.deferred.close()
	})
	return nil
}

// deferredQueue hands ThreadFunc callbacks from the fire path to a task
// goroutine. push never blocks.
type deferredQueue struct {
	mu     sync.Mutex
	items  []deferredCall
	signal chan struct{}
	done   chan struct{}
	closed bool
}

type deferredCall struct {
	fn  ThreadFunc
	arg any
}

func newDeferredQueue(size int) *deferredQueue {
	return &deferredQueue{
		items:  make([]deferredCall, 0, size),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *deferredQueue) push(fn ThreadFunc, arg any) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, deferredCall{fn: fn, arg: arg})
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *deferredQueue) run(log logging.LeveledLogger) {
	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
		}
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			call := q.items[0]
			q.items[0] = deferredCall{}
			q.items = q.items[1:]
			q.mu.Unlock()

			log.Tracef("deferred callback")
			call.fn(call.arg)
		}
	}
}

func (q *deferredQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
