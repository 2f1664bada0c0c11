package xtimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/kernel"
)

func TestUsleepBlocksUntilTarget(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

	var start, end uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		start = uint64(sub.NowTicks64())
		sub.Usleep(5000)
		end = uint64(sub.NowTicks64())
	}()
	drive(t, sub, sim, 100, done)

	assert.GreaterOrEqual(t, end-start, uint64(5000))
	assert.Less(t, end-start, uint64(5100))
}

func TestShortSleepsSpin(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

	sub.Usleep(10)
	assert.Equal(t, uint64(10), sim.Elapsed())

	sub.Nanosleep(1500) // rounds up to 2us
	assert.Equal(t, uint64(12), sim.Elapsed())

	sub.TSleep32(0)
	assert.Equal(t, uint64(12), sim.Elapsed())
}

func TestMsleepAndSleep(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Msleep(3)
		sub.Sleep(1)
	}()
	drive(t, sub, sim, 1000, done)

	assert.GreaterOrEqual(t, sim.Elapsed(), uint64(1003000))
}

func TestSleepOnSlowCounterNeverShort(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(32768, 32))

	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Usleep(1000)
	}()
	drive(t, sub, sim, 1, done)

	// 1000us is 32.77 ticks, so 33 are needed
	assert.GreaterOrEqual(t, sim.Elapsed(), uint64(33))
}

func TestPeriodicWakeupPassedTargetsDoNotCatchUp(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

	last := sub.NowTicks()
	sim.Advance(3950)

	// three periods already passed: each call returns at once
	for i := 1; i <= 3; i++ {
		sub.PeriodicWakeup(&last, 1000)
		assert.Equal(t, Ticks32(i*1000), last)
		assert.Equal(t, uint64(3950), sim.Elapsed())
	}

	// the fourth target is 50 ticks out, below the periodic spin limit
	sub.PeriodicWakeup(&last, 1000)
	assert.Equal(t, Ticks32(4000), last)
	assert.Equal(t, uint64(4000), sim.Elapsed())
}

func TestPeriodicWakeupAbsorbsJitter(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

	last := sub.NowTicks()
	for i := 0; i < 20; i++ {
		// work between wakeups
		sim.Advance(uint64(3 + i%7))
		sub.PeriodicWakeup(&last, 50)
	}
	assert.Equal(t, Ticks32(1000), last)
	assert.Equal(t, uint64(1000), sim.Elapsed())
}

func TestPeriodicWakeupLongRunAverage(t *testing.T) {
	for _, period := range []uint32{300, 1000, 20000} {
		sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))

		const n = 20
		var last Ticks32
		done := make(chan struct{})
		go func() {
			defer close(done)
			last = sub.NowTicks()
			for i := 0; i < n; i++ {
				sub.PeriodicWakeup(&last, period)
			}
		}()
		drive(t, sub, sim, 37, done)

		assert.Equal(t, Ticks32(n*period), last, "period=%d", period)
		assert.GreaterOrEqual(t, sim.Elapsed(), uint64(n*period), "period=%d", period)
		assert.Less(t, sim.Elapsed(), uint64(n*period+37), "period=%d", period)
	}
}

func TestPeriodicWakeupTruncatesToWholeTicks(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(32768, 32))

	last := sub.NowTicks()
	sim.Advance(5*32 + 1)
	for i := 1; i <= 5; i++ {
		// 1000us is 32.77 ticks at 32768 Hz
		sub.PeriodicWakeup(&last, 1000)
		assert.Equal(t, Ticks32(i*32), last)
	}
	assert.Equal(t, uint64(5*32+1), sim.Elapsed(), "passed targets do not block")
}

func TestPeriodPassedAcrossWrap(t *testing.T) {
	assert.True(t, periodPassed(100, 200, 300))
	assert.False(t, periodPassed(100, 400, 300))
	// clock wrapped, target before the wrap
	assert.True(t, periodPassed(0xFFFFFF00, 0xFFFFFF80, 0x10))
	// clock wrapped, target after the wrap but still ahead
	assert.False(t, periodPassed(0xFFFFFF00, 0x20, 0x10))
	// target wrapped, clock did not
	assert.False(t, periodPassed(0xFFFFFF00, 0x20, 0xFFFFFF10))
}

func TestSetWakeupWakesThread(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "sleeper", 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		th.Sleep()
	}()

	var tm Timer
	sub.SetWakeup(&tm, 1000, th)
	sim.Advance(1000)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("thread was not woken")
	}
}

func TestSetTimeoutFlag(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "flags", 4)

	var tm Timer
	sub.SetTimeoutFlag(&tm, 500, th)
	assert.Zero(t, th.Flags().Get())
	sim.Advance(500)
	assert.Equal(t, kernel.FlagTimeout, th.Flags().Get())
}

func TestSetMsgDelivers(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(3, "rx", 4)

	var tm Timer
	sub.SetMsg(&tm, 2000, kernel.Msg{Type: 42, Content: "hello"}, th)
	_, ok := th.TryReceive()
	require.False(t, ok)

	sim.Advance(2000)
	m, ok := th.TryReceive()
	require.True(t, ok)
	assert.Equal(t, uint16(42), m.Type)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, kernel.PIDISR, m.SenderPID)
}

func TestMsgReceiveTimeoutExpires(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "rx", 4)

	var res int
	m := kernel.Msg{Type: 99}
	done := make(chan struct{})
	go func() {
		defer close(done)
		res = sub.MsgReceiveTimeout(th, &m, 3000)
	}()
	drive(t, sub, sim, 250, done)

	assert.Equal(t, -1, res)
	assert.Equal(t, uint16(99), m.Type, "message untouched on timeout")
	assert.GreaterOrEqual(t, sim.Elapsed(), uint64(3000))
}

func TestMsgReceiveTimeoutDataWins(t *testing.T) {
	sub, _ := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "rx", 4)

	type result struct {
		res int
		m   kernel.Msg
	}
	out := make(chan result, 1)
	go func() {
		var m kernel.Msg
		res := sub.MsgReceiveTimeout(th, &m, 100000)
		out <- result{res, m}
	}()

	require.Eventually(t, func() bool { return sub.Stats().Active == 1 }, 2*time.Second, time.Millisecond)
	require.True(t, th.SendInt(kernel.Msg{SenderPID: 7, Type: 1, Content: 1234}))

	select {
	case r := <-out:
		assert.Equal(t, 1, r.res)
		assert.Equal(t, 1234, r.m.Content)
		assert.Equal(t, kernel.PID(7), r.m.SenderPID)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return")
	}
	assert.Equal(t, 0, sub.Stats().Active, "timeout timer removed")
}

func TestMsgReceiveTimeoutSkipsStaleSentinel(t *testing.T) {
	sub, _ := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "rx", 4)

	th.SendInt(kernel.Msg{Type: MsgTimeout, Content: &timeoutToken{}})
	th.SendInt(kernel.Msg{Type: 5})

	var m kernel.Msg
	assert.Equal(t, 1, sub.MsgReceiveTimeout(th, &m, 1000))
	assert.Equal(t, uint16(5), m.Type)
	assert.Zero(t, th.Pending())
}

func TestMsgReceiveTimeoutQueuedData(t *testing.T) {
	sub, _ := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	th := kernel.NewThread(1, "rx", 4)
	th.SendInt(kernel.Msg{Type: 8})

	var m kernel.Msg
	assert.Equal(t, 1, sub.MsgReceiveTimeout64(th, &m, 1000))
	assert.Equal(t, uint16(8), m.Type)
	assert.Zero(t, sub.Stats().Sets, "no timer needed")
}

func TestMutexLockTimeoutFree(t *testing.T) {
	sub, _ := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	var m kernel.Mutex

	assert.Equal(t, 0, sub.MutexLockTimeout(&m, 1000))
	assert.True(t, m.Locked())
}

func TestMutexLockTimeoutExpires(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	var m kernel.Mutex
	m.Lock()

	var res int
	done := make(chan struct{})
	go func() {
		defer close(done)
		res = sub.MutexLockTimeout(&m, 2000)
	}()
	drive(t, sub, sim, 100, done)

	assert.Equal(t, -1, res)
	assert.GreaterOrEqual(t, sim.Elapsed(), uint64(2000))

	// the timed out waiter left the queue, so unlock frees the mutex
	m.Unlock()
	assert.True(t, m.TryLock())
}

func TestMutexLockTimeoutHandoff(t *testing.T) {
	sub, _ := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	var m kernel.Mutex
	m.Lock()

	out := make(chan int, 1)
	go func() { out <- sub.MutexLockTimeout(&m, 100000) }()

	require.Eventually(t, func() bool { return sub.Stats().Active == 1 }, 2*time.Second, time.Millisecond)
	m.Unlock()

	select {
	case res := <-out:
		assert.Equal(t, 0, res)
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not handed over")
	}
	assert.True(t, m.Locked())
	assert.Equal(t, 0, sub.Stats().Active)
}

func TestMutexLockTimeoutShortSpins(t *testing.T) {
	sub, sim := newSimSubsystem(t, DefaultConfig(BaseHZ, 32))
	var m kernel.Mutex
	m.Lock()

	assert.Equal(t, -1, sub.MutexLockTimeout(&m, 10))
	assert.GreaterOrEqual(t, sim.Elapsed(), uint64(10))
	assert.Zero(t, sub.Stats().Sets)
}
