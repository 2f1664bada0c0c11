package kernel

import "sync"

// Flag bits reserved by the system
const (
	FlagTimeout uint16 = 1 << 14
	FlagMsg     uint16 = 1 << 15
)

// Flags is a 16 bit event set a thread can wait on. The zero value is empty.
type Flags struct {
	mu   sync.Mutex
	cond *sync.Cond
	bits uint16
}

func (f *Flags) condLocked() *sync.Cond {
	if f.cond == nil {
		f.cond = sync.NewCond(&f.mu)
	}
	return f.cond
}

// Set raises mask and wakes waiters.
func (f *Flags) Set(mask uint16) {
	f.mu.Lock()
	f.bits |= mask
	f.condLocked().Broadcast()
	f.mu.Unlock()
}

// Clear lowers mask and returns the bits that were set within it.
func (f *Flags) Clear(mask uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.bits & mask
	f.bits &^= mask
	return was
}

// Get returns the raised bits.
func (f *Flags) Get() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits
}

// WaitAny blocks until any bit of mask is raised, then clears and returns
// the raised bits of mask.
func (f *Flags) WaitAny(mask uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.bits&mask == 0 {
		f.condLocked().Wait()
	}
	got := f.bits & mask
	f.bits &^= got
	return got
}
