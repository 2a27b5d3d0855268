package realtime

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/primitives"
)

// AnalogMode selects how analog inputs are sampled.
type AnalogMode string

const (
	// AnalogModeSync reads each in-use channel synchronously every cycle.
	AnalogModeSync AnalogMode = "sync"
	// AnalogModeStream takes the latest scan from an AnalogStream.
	AnalogModeStream AnalogMode = "stream"
)

// Config configures the real-time runtime. Zero fields take defaults.
type Config struct {
	Machines        int           `json:"machines" yaml:"machines"`
	Period          time.Duration `json:"period" yaml:"period"`
	TriggerSustain  time.Duration `json:"trigger_sustain" yaml:"trigger_sustain"`
	JitterTolerance time.Duration `json:"jitter_tolerance" yaml:"jitter_tolerance"`
	// AvoidRedundantWrites skips the digital write when it would not change
	// the last known line state.
	AvoidRedundantWrites bool       `json:"avoid_redundant_writes" yaml:"avoid_redundant_writes"`
	AnalogMode           AnalogMode `json:"analog_mode" yaml:"analog_mode"`

	DigitalChannels   int     `json:"digital_channels" yaml:"digital_channels"`
	AnalogInChannels  int     `json:"analog_in_channels" yaml:"analog_in_channels"`
	AnalogOutChannels int     `json:"analog_out_channels" yaml:"analog_out_channels"`
	AIRangeMinV       float64 `json:"ai_range_min_v" yaml:"ai_range_min_v"`
	AIRangeMaxV       float64 `json:"ai_range_max_v" yaml:"ai_range_max_v"`
	AIMaxData         uint16  `json:"ai_max_data" yaml:"ai_max_data"`
	AOMaxData         uint16  `json:"ao_max_data" yaml:"ao_max_data"`
	// Thresholds overrides the hysteresis band derived from the AI range.
	Thresholds core.Thresholds `json:"thresholds" yaml:"thresholds"`
	AONeutral  uint16          `json:"ao_neutral" yaml:"ao_neutral"`

	HistoryCapacity int `json:"history_capacity" yaml:"history_capacity"`
	// MaxWaveSamples bounds the analog wave samples one machine may hold.
	MaxWaveSamples int `json:"max_wave_samples" yaml:"max_wave_samples"`
	// InlineHelpers runs helper jobs synchronously inside the cycle that
	// pends them. Only for deterministic tests and simulation.
	InlineHelpers bool `json:"inline_helpers" yaml:"inline_helpers"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

// DefaultConfig returns the defaults applied to zero fields.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Machines == 0 {
		c.Machines = 4
	}
	if c.Period == 0 {
		c.Period = time.Millisecond
	}
	if c.TriggerSustain == 0 {
		c.TriggerSustain = time.Millisecond
	}
	if c.JitterTolerance == 0 {
		c.JitterTolerance = 76 * time.Microsecond
	}
	if c.AnalogMode == "" {
		c.AnalogMode = AnalogModeSync
	}
	if c.DigitalChannels == 0 {
		c.DigitalChannels = primitives.MaxChannels
	}
	if c.AnalogInChannels == 0 {
		c.AnalogInChannels = 8
	}
	if c.AnalogOutChannels == 0 {
		c.AnalogOutChannels = 2
	}
	if c.AIRangeMinV == 0 && c.AIRangeMaxV == 0 {
		c.AIRangeMinV, c.AIRangeMaxV = -10, 10
	}
	if c.AIMaxData == 0 {
		c.AIMaxData = 4095
	}
	if c.AOMaxData == 0 {
		c.AOMaxData = 4095
	}
	if c.Thresholds == (core.Thresholds{}) {
		c.Thresholds = core.ThresholdsFromRange(c.AIRangeMinV, c.AIRangeMaxV, c.AIMaxData)
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = primitives.DefaultHistoryCapacity
	}
	if c.MaxWaveSamples == 0 {
		c.MaxWaveSamples = primitives.MaxAOSamples
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks that the configuration fits the fixed bounds.
func (c *Config) Validate() error {
	if c.Machines < 1 || c.Machines > primitives.MaxMachines {
		return fmt.Errorf("machines %d out of range 1-%d", c.Machines, primitives.MaxMachines)
	}
	if c.Period <= 0 {
		return errors.New("period must be positive")
	}
	if c.TriggerSustain < 0 || c.JitterTolerance < 0 {
		return errors.New("durations must not be negative")
	}
	for name, n := range map[string]int{
		"digital_channels":    c.DigitalChannels,
		"analog_in_channels":  c.AnalogInChannels,
		"analog_out_channels": c.AnalogOutChannels,
	} {
		if n < 0 || n > primitives.MaxChannels {
			return fmt.Errorf("%s %d out of range 0-%d", name, n, primitives.MaxChannels)
		}
	}
	switch c.AnalogMode {
	case AnalogModeSync, AnalogModeStream:
	default:
		return fmt.Errorf("unknown analog mode %q", c.AnalogMode)
	}
	if c.Thresholds.Low > c.Thresholds.High {
		return fmt.Errorf("threshold low %d above high %d", c.Thresholds.Low, c.Thresholds.High)
	}
	if c.HistoryCapacity < 1 || c.MaxWaveSamples < 0 {
		return errors.New("history capacity and wave budget must be positive")
	}
	return nil
}

// Limits returns the hardware limits definitions are checked against.
func (c *Config) Limits() primitives.Limits {
	return primitives.Limits{
		DigitalChannels:   c.DigitalChannels,
		AnalogInChannels:  c.AnalogInChannels,
		AnalogOutChannels: c.AnalogOutChannels,
	}
}

// LoadConfig reads a YAML configuration file. Missing fields take defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
