//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"tickos/periph"
)

// Timer peripheral. The runtime sleeps on alarm 0, so the subsystem owns
// alarm 1 and TIMER_IRQ_1.
const (
	timerBase = 0x40054000

	regAlarm1   = timerBase + 0x14
	regArmed    = timerBase + 0x20
	regTimeRawH = timerBase + 0x24
	regTimeRawL = timerBase + 0x28
	regIntr     = timerBase + 0x34
	regInte     = timerBase + 0x38

	alarmBit = 1 << 1
	timerHZ  = 1000000
)

var (
	timerAlarm1 = (*volatile.Register32)(unsafe.Pointer(uintptr(regAlarm1)))
	timerArmed  = (*volatile.Register32)(unsafe.Pointer(uintptr(regArmed)))
	timerRawH   = (*volatile.Register32)(unsafe.Pointer(uintptr(regTimeRawH)))
	timerRawL   = (*volatile.Register32)(unsafe.Pointer(uintptr(regTimeRawL)))
	timerIntr   = (*volatile.Register32)(unsafe.Pointer(uintptr(regIntr)))
	timerInte   = (*volatile.Register32)(unsafe.Pointer(uintptr(regInte)))
)

// alarm is the 1 MHz, 32-bit view of the RP2040 microsecond timer.
type alarm struct {
	handler func()
}

var backend alarm

var _ periph.Timer = (*alarm)(nil)

func (a *alarm) Init(handler func()) error {
	if a.handler != nil {
		return periph.ErrAlreadyInitialized
	}
	a.handler = handler
	timerArmed.Set(alarmBit)
	timerIntr.Set(alarmBit)
	timerInte.SetBits(alarmBit)
	intr := interrupt.New(rp.IRQ_TIMER_IRQ_1, alarmISR)
	intr.Enable()
	return nil
}

func alarmISR(interrupt.Interrupt) {
	timerIntr.Set(alarmBit)
	if backend.handler != nil {
		backend.handler()
	}
}

func (a *alarm) Read() uint32 { return timerRawL.Get() }

// SetAbsolute arms alarm 1; the hardware compares against the low word.
func (a *alarm) SetAbsolute(value uint32) { timerAlarm1.Set(value) }

func (a *alarm) Clear() {
	timerArmed.Set(alarmBit)
	timerIntr.Set(alarmBit)
}

func (a *alarm) Frequency() uint32 { return timerHZ }

func (a *alarm) Width() uint { return 32 }

// uptime reads the full 64-bit counter; the high word is read on both sides
// of the low word to catch a carry in between.
func uptime() uint64 {
	for {
		hi := timerRawH.Get()
		lo := timerRawL.Get()
		if timerRawH.Get() == hi {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}
