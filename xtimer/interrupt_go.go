//go:build !tinygo

package xtimer

import "sync"

// irqState is a placeholder for the saved interrupt state on regular Go
type irqState struct{}

// irqLock stands in for masking interrupts on regular Go. The backend's
// handler goroutine and callers of the API serialize on it the way the
// interrupt handler and threads do on a single core.
type irqLock struct {
	mu sync.Mutex
}

func (l *irqLock) disable() irqState {
	l.mu.Lock()
	return irqState{}
}

func (l *irqLock) restore(irqState) {
	l.mu.Unlock()
}
