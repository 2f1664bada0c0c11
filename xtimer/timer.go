package xtimer

// Ticks32 is a wrapping 32 bit counter value in timer ticks
type Ticks32 uint32

// Ticks64 is a non-wrapping 64 bit counter value in timer ticks
type Ticks64 uint64

// Diff returns t - since, valid while the two are less than 2^31 ticks apart.
func (t Ticks32) Diff(since Ticks32) uint32 {
	return uint32(t - since)
}

// Callback is the function a Timer runs on expiry. It is either an ISRFunc
// or a ThreadFunc; the type decides the context the function runs in.
type Callback interface {
	context() string
}

// ISRFunc runs directly on the fire path in interrupt context. It must be
// short and must not block. It may call Set and Remove.
type ISRFunc func(arg any)

// ThreadFunc is handed to the subsystem's task goroutine and may block.
type ThreadFunc func(arg any)

func (ISRFunc) context() string    { return "isr" }
func (ThreadFunc) context() string { return "thread" }

// Timer is a virtual timer. The caller owns its memory; while the timer is
// set the subsystem keeps a link to it, so it must stay alive until it fires
// or is removed. The zero value is an inactive timer.
type Timer struct {
	Callback Callback
	Arg      any

	target     uint32 // low word of the absolute expiry in ticks
	longTarget uint32 // high word
	next       *Timer
	active     bool
}

// expires returns the absolute expiry in ticks
func (t *Timer) expires() uint64 {
	return uint64(t.longTarget)<<32 | uint64(t.target)
}

func (t *Timer) setExpiry(abs uint64) {
	t.target = uint32(abs)
	t.longTarget = uint32(abs >> 32)
}

// before orders timers by long target first, then target.
func (t *Timer) before(o *Timer) bool {
	if t.longTarget != o.longTarget {
		return t.longTarget < o.longTarget
	}
	return t.target < o.target
}
