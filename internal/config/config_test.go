package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, 64, cfg.Sensor.Samples)
	assert.Equal(t, 50*time.Microsecond, cfg.Sensor.SampleDelay)
	assert.Equal(t, uint16(45), cfg.Loop.DefaultThreshold)
	assert.Equal(t, 6, cfg.Loop.OverflowLimit)
	assert.Equal(t, 30*time.Second, cfg.Loop.Cooldown)
	assert.Equal(t, 2*time.Second, cfg.Loop.Interval)
	assert.Equal(t, time.Second, cfg.Pump.RunDuration)
	assert.Equal(t, uint32(128), cfg.Pump.Duty)
	assert.Equal(t, uint32(255), cfg.Pump.MaxDuty())
	assert.True(t, cfg.Pump.AttachFatal())
	assert.Equal(t, 5*time.Second, cfg.Calibration.Window)
	assert.Equal(t, 2*time.Second, cfg.Calibration.Pause)
	assert.Equal(t, 2*time.Second, cfg.Calibration.Settle)
	assert.Equal(t, 1, cfg.Calibration.Margin)
	assert.Equal(t, 30, cfg.Calibration.MaxCycles)
	assert.Equal(t, "irrigator", cfg.Store.Namespace)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigator.yaml")
	yamlContent := `
store:
  path: /tmp/prefs.db

pins:
  trigger: 5
  led: 6
  moisture_addr: 0x37

sensor:
  samples: 16
  sample_delay: 100us

pump:
  duty: 200
  run_duration: 1500ms
  attach_fatal: false

loop:
  default_threshold: 60
  overflow_limit: 4
  cooldown: 1m

calibration:
  max_cycles: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/prefs.db", cfg.Store.Path)
	assert.Equal(t, "irrigator", cfg.Store.Namespace)
	assert.Equal(t, 5, cfg.Pins.Trigger)
	assert.Equal(t, 6, cfg.Pins.LED)
	assert.Equal(t, 0x37, cfg.Pins.MoistureAddr)
	assert.Equal(t, 16, cfg.Sensor.Samples)
	assert.Equal(t, 100*time.Microsecond, cfg.Sensor.SampleDelay)
	assert.Equal(t, uint32(200), cfg.Pump.Duty)
	assert.Equal(t, 1500*time.Millisecond, cfg.Pump.RunDuration)
	assert.False(t, cfg.Pump.AttachFatal())
	assert.Equal(t, uint16(60), cfg.Loop.DefaultThreshold)
	assert.Equal(t, 4, cfg.Loop.OverflowLimit)
	assert.Equal(t, time.Minute, cfg.Loop.Cooldown)
	assert.Equal(t, 0, cfg.Calibration.MaxCycles)

	// Untouched sections keep defaults
	assert.Equal(t, 2*time.Second, cfg.Loop.Interval)
	assert.Equal(t, 5*time.Second, cfg.Calibration.Window)
}

func TestLoad_ZeroValuesRestored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigator.yaml")
	yamlContent := `
sensor:
  samples: 0
loop:
  default_threshold: 0
  overflow_limit: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Sensor.Samples)
	assert.Equal(t, uint16(45), cfg.Loop.DefaultThreshold)
	assert.Equal(t, 6, cfg.Loop.OverflowLimit)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pump: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DutyExceedsResolution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigator.yaml")
	yamlContent := `
pump:
  resolution_bits: 4
  duty: 128
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pump.duty")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Sensor.Samples = 0
	cfg.Loop.OverflowLimit = 0
	cfg.Calibration.MaxCycles = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor.samples")
	assert.Contains(t, err.Error(), "loop.overflow_limit")
	assert.Contains(t, err.Error(), "calibration.max_cycles")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "irrigator.yaml")

	cfg := Default()
	cfg.Loop.DefaultThreshold = 52
	cfg.Pump.Duty = 90
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(52), loaded.Loop.DefaultThreshold)
	assert.Equal(t, uint32(90), loaded.Pump.Duty)
	assert.Equal(t, cfg.Sensor.SampleDelay, loaded.Sensor.SampleDelay)
}
