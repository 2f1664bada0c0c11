// Package config loads YAML profiles describing a timer board and the host
// tooling around it.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"

	"tickos/host/serial"
	"tickos/xtimer"
)

// Profile is one board description.
type Profile struct {
	Timer   Timer   `yaml:"timer"`
	Serial  Serial  `yaml:"serial"`
	Metrics Metrics `yaml:"metrics"`
	Log     Log     `yaml:"log"`
}

// Timer tuning in counter ticks. Unset thresholds take the defaults for the
// counter frequency.
type Timer struct {
	HZ               uint32  `yaml:"hz"`
	Width            uint    `yaml:"width"`
	Backoff          *uint32 `yaml:"backoff,omitempty"`
	ISRBackoff       *uint32 `yaml:"isr_backoff,omitempty"`
	Overhead         *uint32 `yaml:"overhead,omitempty"`
	PeriodicSpin     *uint32 `yaml:"periodic_spin,omitempty"`
	PeriodicRelative *uint32 `yaml:"periodic_relative,omitempty"`
}

type Serial struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default returns the profile of a 1 MHz, 32-bit counter.
func Default() *Profile {
	p := &Profile{}
	applyDefaults(p)
	return p
}

// Load parses a profile and fills in defaults. It does not validate.
func Load(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(&p)
	return &p, nil
}

// LoadFile is Load on a file followed by Validate.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := Load(data)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func applyDefaults(p *Profile) {
	if p.Timer.HZ == 0 {
		p.Timer.HZ = xtimer.BaseHZ
	}
	if p.Timer.Width == 0 {
		p.Timer.Width = 32
	}
	if p.Serial.Baud == 0 {
		p.Serial.Baud = serial.DefaultBaud
	}
	if p.Serial.ReadTimeoutMs == 0 {
		p.Serial.ReadTimeoutMs = 100
	}
	if p.Log.Level == "" {
		p.Log.Level = "info"
	}
}

// Save writes the profile as YAML.
func (p *Profile) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}

// TimerConfig merges the profile's overrides into the defaults for its
// counter.
func (p *Profile) TimerConfig() xtimer.Config {
	cfg := xtimer.DefaultConfig(p.Timer.HZ, p.Timer.Width)
	set := func(dst *uint32, v *uint32) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Backoff, p.Timer.Backoff)
	set(&cfg.ISRBackoff, p.Timer.ISRBackoff)
	set(&cfg.Overhead, p.Timer.Overhead)
	set(&cfg.PeriodicSpin, p.Timer.PeriodicSpin)
	set(&cfg.PeriodicRelative, p.Timer.PeriodicRelative)
	return cfg
}

// SerialConfig returns the port settings, with device overriding the
// profile when not empty.
func (p *Profile) SerialConfig(device string) *serial.Config {
	cfg := serial.DefaultConfig(p.Serial.Device)
	if device != "" {
		cfg.Device = device
	}
	cfg.Baud = p.Serial.Baud
	cfg.ReadTimeout = time.Duration(p.Serial.ReadTimeoutMs) * time.Millisecond
	return cfg
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	lvl, ok := logLevels[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return lvl, nil
}

// LoggerFactory returns a factory logging at the profile's level to w.
func (p *Profile) LoggerFactory(w io.Writer) logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	if lvl, err := ParseLogLevel(p.Log.Level); err == nil {
		f.DefaultLogLevel = lvl
	}
	return f
}

// ValidationError lists every problem found in a profile.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "config: invalid profile: " + e.Errors[0]
	}
	var b strings.Builder
	b.WriteString("config: invalid profile:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks every section and reports all problems at once.
func (p *Profile) Validate() error {
	var errs []string

	if err := p.TimerConfig().Validate(); err != nil {
		var ce *xtimer.ConfigError
		if errors.As(err, &ce) {
			for _, pr := range ce.Problems {
				errs = append(errs, "timer: "+pr)
			}
		} else {
			errs = append(errs, "timer: "+err.Error())
		}
	}
	if p.Timer.PeriodicSpin != nil && p.Timer.PeriodicRelative != nil && *p.Timer.PeriodicSpin > *p.Timer.PeriodicRelative {
		errs = append(errs, "timer: periodic_spin must not exceed periodic_relative")
	}
	if p.Serial.Baud < 0 {
		errs = append(errs, fmt.Sprintf("serial.baud: %d is negative", p.Serial.Baud))
	}
	if p.Serial.ReadTimeoutMs < 0 {
		errs = append(errs, fmt.Sprintf("serial.read_timeout_ms: %d is negative", p.Serial.ReadTimeoutMs))
	}
	if p.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(p.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("metrics.listen: %v", err))
		}
	}
	if _, err := ParseLogLevel(p.Log.Level); err != nil {
		errs = append(errs, "log.level: unknown level "+p.Log.Level)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
