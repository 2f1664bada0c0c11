package kernel

import (
	"errors"
	"sync"
)

var ErrCanceled = errors.New("kernel: mutex lock canceled")

// Mutex is a non-recursive lock that hands ownership directly to the
// longest waiting locker on Unlock. Unlock may be called from a goroutine
// other than the owner, including the timer fire path.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []*waiter
}

type waiter struct {
	ch      chan struct{}
	granted bool
}

// NewLockedMutex returns a mutex that starts out locked.
func NewLockedMutex() *Mutex {
	return &Mutex{locked: true}
}

func (m *Mutex) Lock() {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	w := m.enqueueLocked()
	m.mu.Unlock()
	<-w.ch
}

// TryLock takes the mutex if it is free.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases the mutex or hands it to the first waiter. Unlocking a
// free mutex is a bug and panics.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		panic("kernel: unlock of unlocked mutex")
	}
	if len(m.waiters) == 0 {
		m.locked = false
		return
	}
	w := m.waiters[0]
	m.waiters[0] = nil
	m.waiters = m.waiters[1:]
	w.granted = true
	close(w.ch)
}

// Locked reports whether the mutex is held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

func (m *Mutex) enqueueLocked() *waiter {
	w := &waiter{ch: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	return w
}

func (m *Mutex) dequeueLocked(w *waiter) bool {
	for i, cur := range m.waiters {
		if cur == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// MutexCancel lets one LockCancelable call on a mutex be aborted from
// another context.
type MutexCancel struct {
	m        *Mutex
	canceled bool
	w        *waiter
}

// NewCancel returns a cancel token for m.
func (m *Mutex) NewCancel() *MutexCancel {
	return &MutexCancel{m: m}
}

// Cancel aborts the pending or next LockCancelable. It is a no-op when the
// lock was already handed over.
func (mc *MutexCancel) Cancel() {
	m := mc.m
	m.mu.Lock()
	defer m.mu.Unlock()
	mc.canceled = true
	if mc.w != nil && !mc.w.granted && m.dequeueLocked(mc.w) {
		close(mc.w.ch)
	}
}

// LockCancelable is Lock that returns ErrCanceled when mc is canceled
// before ownership arrives. A token canceled before the call fails at once.
func (m *Mutex) LockCancelable(mc *MutexCancel) error {
	m.mu.Lock()
	if mc.canceled {
		m.mu.Unlock()
		return ErrCanceled
	}
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	w := m.enqueueLocked()
	mc.w = w
	m.mu.Unlock()

	<-w.ch

	m.mu.Lock()
	defer m.mu.Unlock()
	mc.w = nil
	if w.granted {
		return nil
	}
	return ErrCanceled
}
