package periph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimRejectsBadWidth(t *testing.T) {
	_, err := NewSim(1000000, 20)
	assert.ErrorIs(t, err, ErrInvalidWidth)

	_, err = NewSim(0, 16)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestSimInitOnce(t *testing.T) {
	s, err := NewSim(1000000, 32)
	require.NoError(t, err)
	require.NoError(t, s.Init(func() {}))
	assert.ErrorIs(t, s.Init(func() {}), ErrAlreadyInitialized)
}

func TestSimAdvanceStopsOnMatch(t *testing.T) {
	s, err := NewSim(1000000, 16)
	require.NoError(t, err)

	var seen []uint32
	require.NoError(t, s.Init(func() { seen = append(seen, s.Read()) }))

	s.SetAbsolute(100)
	s.Advance(250)

	assert.Equal(t, []uint32{100}, seen)
	assert.Equal(t, uint32(250), s.Read())
	_, armed := s.Compare()
	assert.False(t, armed, "compare channel is one shot")
}

func TestSimWrapsAtWidth(t *testing.T) {
	s, err := NewSim(1000000, 16)
	require.NoError(t, err)
	require.NoError(t, s.Init(func() {}))

	s.Set(0xFFF0)
	s.Advance(0x20)
	assert.Equal(t, uint32(0x10), s.Read())
	assert.Equal(t, uint64(0x20), s.Elapsed())
}

func TestSimCompareAtCounterFiresNextPeriod(t *testing.T) {
	s, err := NewSim(1000000, 16)
	require.NoError(t, err)

	fired := 0
	require.NoError(t, s.Init(func() { fired++ }))

	s.Set(500)
	s.SetAbsolute(500)
	s.Advance(0xFFFF)
	assert.Equal(t, 0, fired)
	s.Advance(1)
	assert.Equal(t, 1, fired)
}

func TestSimNestedMatchIsPending(t *testing.T) {
	s, err := NewSim(1000000, 32)
	require.NoError(t, err)

	var order []uint32
	first := true
	require.NoError(t, s.Init(func() {
		order = append(order, s.Read())
		if first {
			first = false
			s.SetAbsolute(s.Read() + 5)
			// spinning inside the handler crosses the new compare value
			s.Spin(10)
		}
	}))

	s.SetAbsolute(10)
	s.Advance(100)

	require.Len(t, order, 2)
	assert.Equal(t, uint32(10), order[0])
	assert.Equal(t, uint32(20), order[1], "pending match runs after the first handler returns")
}

func TestHostFiresCompare(t *testing.T) {
	h, err := NewHost(1000000, 32)
	require.NoError(t, err)

	done := make(chan uint32, 1)
	require.NoError(t, h.Init(func() { done <- h.Read() }))

	target := h.Read() + 2000
	h.SetAbsolute(target)

	select {
	case got := <-done:
		assert.Less(t, got-target, uint32(1<<31), "match delivered before the counter reached the target")
	case <-time.After(2 * time.Second):
		t.Fatal("compare match never delivered")
	}
}

func TestHostClearCancels(t *testing.T) {
	h, err := NewHost(1000000, 32)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	require.NoError(t, h.Init(func() { fired <- struct{}{} }))

	h.SetAbsolute(h.Read() + 1000)
	h.Clear()

	select {
	case <-fired:
		t.Fatal("cleared compare fired")
	case <-time.After(20 * time.Millisecond):
	}
}
