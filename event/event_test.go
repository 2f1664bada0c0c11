package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/periph"
	"tickos/xtimer"
)

func newTestSubsystem(t *testing.T) (*xtimer.Subsystem, *periph.Sim) {
	t.Helper()
	sim, err := periph.NewSim(xtimer.BaseHZ, 32)
	require.NoError(t, err)
	sub, err := xtimer.New(sim, xtimer.DefaultConfig(xtimer.BaseHZ, 32))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub, sim
}

func TestQueueFIFOAndIdempotentPost(t *testing.T) {
	q := NewQueue()
	a, b, c := &Event{}, &Event{}, &Event{}

	q.Post(a)
	q.Post(b)
	q.Post(a)
	q.Post(c)
	assert.Equal(t, 3, q.Len())

	assert.Same(t, a, q.Get())
	assert.Same(t, b, q.Get())
	assert.Same(t, c, q.Get())
	assert.Nil(t, q.Get())
}

func TestQueueCancel(t *testing.T) {
	q := NewQueue()
	a, b, c := &Event{}, &Event{}, &Event{}
	q.Post(a)
	q.Post(b)
	q.Post(c)

	assert.True(t, q.Cancel(c))
	assert.False(t, q.Cancel(c))
	assert.True(t, q.Cancel(a))

	// tail was fixed up, so a new post lands after b
	q.Post(a)
	assert.Same(t, b, q.Get())
	assert.Same(t, a, q.Get())
	assert.Zero(t, q.Len())
}

func TestLoopRunsHandlers(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan any, 2)
	q.Post(&NewCallback(func(arg any) { got <- arg }, "first").Event)

	loopDone := make(chan error, 1)
	go func() { loopDone <- q.Loop(ctx) }()

	second := NewCallback(func(arg any) { got <- arg }, 2)
	q.Post(&second.Event)

	for _, want := range []any{"first", 2} {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not run")
		}
	}

	cancel()
	assert.ErrorIs(t, <-loopDone, context.Canceled)
}

func TestWaitTimeoutExpires(t *testing.T) {
	sub, sim := newTestSubsystem(t)
	q := NewQueue()

	res := make(chan *Event, 1)
	go func() { res <- q.WaitTimeout(sub, 2000) }()
	require.Eventually(t, func() bool { return sub.Stats().Active == 1 }, 2*time.Second, time.Millisecond)

	sim.Advance(2000)
	select {
	case ev := <-res:
		assert.Nil(t, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not time out")
	}
	assert.Zero(t, sub.Stats().Active)
}

func TestWaitTimeoutReturnsPostedEvent(t *testing.T) {
	sub, _ := newTestSubsystem(t)
	q := NewQueue()
	ev := &Event{}

	res := make(chan *Event, 1)
	go func() { res <- q.WaitTimeout(sub, 100000) }()
	require.Eventually(t, func() bool { return sub.Stats().Active == 1 }, 2*time.Second, time.Millisecond)

	q.Post(ev)
	select {
	case got := <-res:
		assert.Same(t, ev, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event not returned")
	}
	assert.Zero(t, sub.Stats().Active, "timeout timer removed")
}

func TestTimeoutPostsEvent(t *testing.T) {
	sub, sim := newTestSubsystem(t)
	q := NewQueue()
	ev := &Event{}

	var to Timeout
	to.Init(sub, q, ev)
	to.Set(5000)
	assert.True(t, to.IsPending())

	sim.Advance(4900)
	assert.Nil(t, q.Get())

	sim.Advance(100)
	assert.False(t, to.IsPending())
	assert.Same(t, ev, q.Get())
}

func TestTimeoutClearAndRearm(t *testing.T) {
	sub, sim := newTestSubsystem(t)
	q := NewQueue()
	ev := &Event{}

	var to Timeout
	to.Init(sub, q, ev)
	to.Set64(1000)
	to.Clear()
	assert.False(t, to.IsPending())
	sim.Advance(2000)
	assert.Nil(t, q.Get())

	// setting again moves the deadline
	to.Set(3000)
	to.Set(1000)
	sim.Advance(1000)
	assert.Same(t, ev, q.Get())
	sim.Advance(5000)
	assert.Nil(t, q.Get(), "posted once")
}

func TestTimeoutReinitWhileArmed(t *testing.T) {
	sub, sim := newTestSubsystem(t)
	q := NewQueue()
	first, second := &Event{}, &Event{}

	var to Timeout
	to.Init(sub, q, first)
	to.Set(1000)

	otherFired := false
	other := &xtimer.Timer{Callback: xtimer.ISRFunc(func(any) { otherFired = true })}
	sub.Set(other, 5000)

	to.Init(sub, q, second)
	assert.False(t, to.IsPending())
	assert.Equal(t, 1, sub.Stats().Active)

	sim.Advance(10000)
	assert.True(t, otherFired, "unrelated timer still linked")
	assert.Zero(t, sub.Stats().Active)
	assert.Nil(t, q.Get(), "disarmed by the second init")

	to.Set(1000)
	sim.Advance(1000)
	assert.Same(t, second, q.Get())
}
