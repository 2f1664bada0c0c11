//go:build tinygo

package xtimer

import "runtime/interrupt"

type irqState = interrupt.State

// irqLock masks interrupts on the single core the subsystem runs on
type irqLock struct{}

func (l *irqLock) disable() irqState {
	return interrupt.Disable()
}

func (l *irqLock) restore(state irqState) {
	interrupt.Restore(state)
}
