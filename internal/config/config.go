package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the controller configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Pins        PinsConfig        `yaml:"pins"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Pump        PumpConfig        `yaml:"pump"`
	Loop        LoopConfig        `yaml:"loop"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Log         LogConfig         `yaml:"log"`
}

// StoreConfig locates the durable preferences database.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// PinsConfig contains hardware wiring (BCM line offsets on the GPIO chip).
type PinsConfig struct {
	Chip          string        `yaml:"chip"`
	Trigger       int           `yaml:"trigger"`
	LED           int           `yaml:"led"`
	PWMChannel    int           `yaml:"pwm_channel"`
	MoistureAddr  int           `yaml:"moisture_addr"`
	MoistureDelay time.Duration `yaml:"moisture_delay"` // conversion time between touch request and read
}

// SensorConfig contains the averaging filter parameters.
type SensorConfig struct {
	Samples     int           `yaml:"samples"`
	SampleDelay time.Duration `yaml:"sample_delay"` // sub-millisecond; never rounded up
}

// PumpConfig contains the PWM pump driver parameters.
type PumpConfig struct {
	FrequencyHz    int           `yaml:"frequency_hz"`
	ResolutionBits int           `yaml:"resolution_bits"`
	Duty           uint32        `yaml:"duty"`
	RunDuration    time.Duration `yaml:"run_duration"`
	FailOnAttach   *bool         `yaml:"attach_fatal"`
}

// LoopConfig contains the decision and safety loop parameters.
type LoopConfig struct {
	Interval         time.Duration `yaml:"interval"`
	DefaultThreshold uint16        `yaml:"default_threshold"`
	OverflowLimit    int           `yaml:"overflow_limit"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// CalibrationConfig contains the interactive calibration parameters.
type CalibrationConfig struct {
	Window       time.Duration `yaml:"window"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Pause        time.Duration `yaml:"pause"`
	Settle       time.Duration `yaml:"settle"`
	Margin       int           `yaml:"margin"`
	MaxCycles    int           `yaml:"max_cycles"` // 0 = unbounded
	BlinkCount   int           `yaml:"blink_count"`
	BlinkPeriod  time.Duration `yaml:"blink_period"`
}

// LogConfig controls the optional serial log stream.
type LogConfig struct {
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

// Default returns a configuration with the stock controller values.
func Default() *Config {
	attachFatal := true
	return &Config{
		Store: StoreConfig{
			Path:      "/var/lib/irrigator/prefs.db",
			Namespace: "irrigator",
		},
		Pins: PinsConfig{
			Chip:          "gpiochip0",
			Trigger:       17,
			LED:           27,
			PWMChannel:    0,
			MoistureAddr:  0x36,
			MoistureDelay: time.Millisecond,
		},
		Sensor: SensorConfig{
			Samples:     64,
			SampleDelay: 50 * time.Microsecond,
		},
		Pump: PumpConfig{
			FrequencyHz:    5000,
			ResolutionBits: 8,
			Duty:           128,
			RunDuration:    time.Second,
			FailOnAttach:   &attachFatal,
		},
		Loop: LoopConfig{
			Interval:         2 * time.Second,
			DefaultThreshold: 45,
			OverflowLimit:    6,
			Cooldown:         30 * time.Second,
		},
		Calibration: CalibrationConfig{
			Window:       5 * time.Second,
			PollInterval: 50 * time.Millisecond,
			Pause:        2 * time.Second,
			Settle:       2 * time.Second,
			Margin:       1,
			MaxCycles:    30,
			BlinkCount:   3,
			BlinkPeriod:  200 * time.Millisecond,
		},
		Log: LogConfig{
			BaudRate: 115200,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, default values are used.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AttachFatal reports whether a PWM attach failure should stop the controller.
func (p PumpConfig) AttachFatal() bool {
	return p.FailOnAttach == nil || *p.FailOnAttach
}

// MaxDuty returns the largest duty value for the configured resolution.
func (p PumpConfig) MaxDuty() uint32 {
	return 1<<uint(p.ResolutionBits) - 1
}

// Validate checks the invariants the controller relies on.
func (c *Config) Validate() error {
	var errs []error

	if c.Sensor.Samples < 1 {
		errs = append(errs, fmt.Errorf("sensor.samples must be >= 1, got %d", c.Sensor.Samples))
	}
	if c.Sensor.SampleDelay < 0 {
		errs = append(errs, errors.New("sensor.sample_delay must not be negative"))
	}
	if c.Pump.ResolutionBits < 1 || c.Pump.ResolutionBits > 16 {
		errs = append(errs, fmt.Errorf("pump.resolution_bits must be in [1, 16], got %d", c.Pump.ResolutionBits))
	} else if c.Pump.Duty > c.Pump.MaxDuty() {
		errs = append(errs, fmt.Errorf("pump.duty %d exceeds %d for %d-bit resolution", c.Pump.Duty, c.Pump.MaxDuty(), c.Pump.ResolutionBits))
	}
	if c.Pump.FrequencyHz <= 0 {
		errs = append(errs, errors.New("pump.frequency_hz must be > 0"))
	}
	if c.Loop.DefaultThreshold == 0 {
		errs = append(errs, errors.New("loop.default_threshold must be > 0"))
	}
	if c.Loop.OverflowLimit < 1 {
		errs = append(errs, fmt.Errorf("loop.overflow_limit must be >= 1, got %d", c.Loop.OverflowLimit))
	}
	if c.Calibration.PollInterval <= 0 {
		errs = append(errs, errors.New("calibration.poll_interval must be > 0"))
	}
	if c.Calibration.MaxCycles < 0 {
		errs = append(errs, errors.New("calibration.max_cycles must not be negative"))
	}

	return errors.Join(errs...)
}

// ensureDefaults fills zero-valued fields with defaults.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = def.Store.Namespace
	}

	if c.Pins.Chip == "" {
		c.Pins.Chip = def.Pins.Chip
	}
	if c.Pins.MoistureAddr == 0 {
		c.Pins.MoistureAddr = def.Pins.MoistureAddr
	}

	if c.Sensor.Samples == 0 {
		c.Sensor.Samples = def.Sensor.Samples
	}

	if c.Pump.FrequencyHz == 0 {
		c.Pump.FrequencyHz = def.Pump.FrequencyHz
	}
	if c.Pump.ResolutionBits == 0 {
		c.Pump.ResolutionBits = def.Pump.ResolutionBits
	}
	if c.Pump.RunDuration == 0 {
		c.Pump.RunDuration = def.Pump.RunDuration
	}
	if c.Pump.FailOnAttach == nil {
		c.Pump.FailOnAttach = def.Pump.FailOnAttach
	}

	if c.Loop.Interval == 0 {
		c.Loop.Interval = def.Loop.Interval
	}
	if c.Loop.DefaultThreshold == 0 {
		c.Loop.DefaultThreshold = def.Loop.DefaultThreshold
	}
	if c.Loop.OverflowLimit == 0 {
		c.Loop.OverflowLimit = def.Loop.OverflowLimit
	}
	if c.Loop.Cooldown == 0 {
		c.Loop.Cooldown = def.Loop.Cooldown
	}

	if c.Calibration.Window == 0 {
		c.Calibration.Window = def.Calibration.Window
	}
	if c.Calibration.PollInterval == 0 {
		c.Calibration.PollInterval = def.Calibration.PollInterval
	}
	if c.Calibration.Pause == 0 {
		c.Calibration.Pause = def.Calibration.Pause
	}
	if c.Calibration.Settle == 0 {
		c.Calibration.Settle = def.Calibration.Settle
	}
	if c.Calibration.BlinkPeriod == 0 {
		c.Calibration.BlinkPeriod = def.Calibration.BlinkPeriod
	}

	if c.Log.BaudRate == 0 {
		c.Log.BaudRate = def.Log.BaudRate
	}
}
