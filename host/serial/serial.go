// Package serial opens the device link on a host serial port.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is ignored by USB CDC devices but required by UARTs.
const DefaultBaud = 250000

var ErrNoDevice = errors.New("serial: no device given")

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration // zero blocks
}

func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}

type port struct {
	*serial.Port
}

// Open opens the port described by cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, ErrNoDevice
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return port{p}, nil
}
