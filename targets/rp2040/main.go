//go:build rp2040

// Firmware exposing the timer subsystem over USB CDC.
package main

import (
	"context"
	"machine"
	"strconv"
	"time"

	"tickos/device"
	"tickos/xtimer"
)

const heartbeatUs = 500000

// usbLink blocks reads until the CDC endpoint has data.
type usbLink struct{}

func (usbLink) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (usbLink) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}

func main() {
	if err := machine.Serial.Configure(machine.UARTConfig{}); err != nil {
		return
	}

	sub, err := xtimer.New(&backend, xtimer.DefaultConfig(timerHZ, 32))
	if err != nil {
		panic(err)
	}

	reg := device.NewRegistry()
	if err := device.RegisterTimer(reg, sub); err != nil {
		panic(err)
	}
	reg.SetConfig("MCU", "rp2040")
	reg.SetConfig("BOOT_UPTIME", strconv.FormatUint(uptime(), 10))

	go heartbeat(sub)

	ep := device.NewEndpoint(reg)
	for {
		// Serve only returns on a link error; a restarting host resets
		// the sequence on its first frame
		_ = ep.Serve(context.Background(), usbLink{})
		time.Sleep(10 * time.Millisecond)
	}
}

// heartbeat blinks the LED off the periodic wakeup path.
func heartbeat(sub *xtimer.Subsystem) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	last := sub.NowTicks()
	on := false
	for {
		sub.PeriodicWakeup(&last, heartbeatUs)
		on = !on
		led.Set(on)
	}
}
