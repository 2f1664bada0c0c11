package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/xtimer"
)

const profile = `
timer:
  hz: 32768
  width: 16
  backoff: 6
  overhead: 1
serial:
  device: /dev/ttyUSB1
metrics:
  listen: ":9100"
log:
  level: debug
`

func TestLoadAppliesDefaults(t *testing.T) {
	p, err := Load([]byte(profile))
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, uint32(32768), p.Timer.HZ)
	assert.Equal(t, 250000, p.Serial.Baud)
	assert.Equal(t, 100, p.Serial.ReadTimeoutMs)

	cfg := p.TimerConfig()
	def := xtimer.DefaultConfig(32768, 16)
	assert.Equal(t, uint32(6), cfg.Backoff)
	assert.Equal(t, uint32(1), cfg.Overhead)
	assert.Equal(t, def.ISRBackoff, cfg.ISRBackoff, "unset keeps the default")
	assert.Equal(t, def.PeriodicRelative, cfg.PeriodicRelative)
}

func TestDefaultProfile(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, xtimer.DefaultConfig(xtimer.BaseHZ, 32), p.TimerConfig())
	assert.Equal(t, "info", p.Log.Level)
}

func TestValidateAccumulates(t *testing.T) {
	p, err := Load([]byte(`
timer:
  hz: 3000000
  width: 20
serial:
  baud: -1
metrics:
  listen: "nope"
log:
  level: loud
`))
	require.NoError(t, err)

	err = p.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Errors), 5)
	msg := err.Error()
	assert.Contains(t, msg, "width 20")
	assert.Contains(t, msg, "serial.baud")
	assert.Contains(t, msg, "metrics.listen")
	assert.Contains(t, msg, "log.level")
}

func TestValidatePeriodicOrder(t *testing.T) {
	p, err := Load([]byte("timer:\n  periodic_spin: 900\n  periodic_relative: 100\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, p.Validate(), "periodic_spin")
}

func TestValidateISRBackoffAboveBackoff(t *testing.T) {
	p, err := Load([]byte("timer:\n  backoff: 10\n  isr_backoff: 12\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, p.Validate(), "isr_backoff 12 exceeds backoff 10")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load([]byte("timer: [1, 2"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint(16), p.Timer.Width)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("timer:\n  width: 8\n"), 0o600))
	_, err = LoadFile(path)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSaveRoundTrip(t *testing.T) {
	p, err := Load([]byte(profile))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))
	again, err := Load(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestSerialConfig(t *testing.T) {
	p, err := Load([]byte(profile))
	require.NoError(t, err)

	cfg := p.SerialConfig("")
	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, "/dev/ttyACM3", p.SerialConfig("/dev/ttyACM3").Device)
}

func TestLogLevels(t *testing.T) {
	lvl, err := ParseLogLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevelDebug, lvl)
	_, err = ParseLogLevel("chatty")
	assert.Error(t, err)

	p, err := Load([]byte(profile))
	require.NoError(t, err)
	var buf bytes.Buffer
	log := p.LoggerFactory(&buf).NewLogger("test")
	log.Debug("visible")
	log.Trace("hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), "hidden")
}
