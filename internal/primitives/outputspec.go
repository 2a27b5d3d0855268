package primitives

import (
	"fmt"
	"strings"
)

// OutputKind tags the OutputSpec variant.
type OutputKind string

const (
	OutputDigital OutputKind = "dout"
	OutputTrigger OutputKind = "trig"
	OutputSound   OutputKind = "sound"
	OutputWave    OutputKind = "wave"
	OutputNotify  OutputKind = "notify"
	OutputNoop    OutputKind = "noop"
)

// OutputSpec routes one output column of the state table to a sink. It is a
// tagged variant; fields not used by Kind are zero.
//
// The column value is interpreted per Kind:
//   - dout: bitmask over lines From..To, held while the state is active
//   - trig: bitmask over lines From..To, pulsed for the trigger sustain time
//   - sound: signed trigger id for SoundCard; negative untriggers
//   - wave: signed sum of 2^wave ids; positive starts, negative stops
//   - notify: value sent out of band when it changes
//   - noop: ignored
type OutputSpec struct {
	Kind      OutputKind `json:"kind" yaml:"kind"`
	From      int        `json:"from,omitempty" yaml:"from,omitempty"`
	To        int        `json:"to,omitempty" yaml:"to,omitempty"`
	SoundCard int        `json:"sound_card,omitempty" yaml:"sound_card,omitempty"`
	Protocol  string     `json:"protocol,omitempty" yaml:"protocol,omitempty"` // tcp or udp
	Host      string     `json:"host,omitempty" yaml:"host,omitempty"`
	Port      int        `json:"port,omitempty" yaml:"port,omitempty"`
	Format    string     `json:"format,omitempty" yaml:"format,omitempty"`
}

// DigitalOut builds a continuous-digital spec over lines from..to.
func DigitalOut(from, to int) OutputSpec { return OutputSpec{Kind: OutputDigital, From: from, To: to} }

// TriggerOut builds a pulsed-trigger spec over lines from..to.
func TriggerOut(from, to int) OutputSpec { return OutputSpec{Kind: OutputTrigger, From: from, To: to} }

// SoundOut builds a virtual sound-trigger spec.
func SoundOut(card int) OutputSpec { return OutputSpec{Kind: OutputSound, SoundCard: card} }

// WaveOut builds a scheduled-wave trigger spec.
func WaveOut() OutputSpec { return OutputSpec{Kind: OutputWave} }

// NotifyOut builds an out-of-band notification spec.
func NotifyOut(protocol, host string, port int, format string) OutputSpec {
	return OutputSpec{Kind: OutputNotify, Protocol: protocol, Host: host, Port: port, Format: format}
}

// Lines returns the digital lines claimed by dout and trig specs.
func (s *OutputSpec) Lines() Bits {
	switch s.Kind {
	case OutputDigital, OutputTrigger:
		return RangeMask(s.From, s.To)
	}
	return 0
}

// Validate checks the spec against the number of digital lines.
func (s *OutputSpec) Validate(digitalChannels int) error {
	switch s.Kind {
	case OutputDigital, OutputTrigger:
		if s.From < 0 || s.To < s.From || s.To >= digitalChannels || s.To >= MaxChannels {
			return fmt.Errorf("%w: %s lines %d-%d (have %d)", ErrChannelRange, s.Kind, s.From, s.To, digitalChannels)
		}
	case OutputNotify:
		p := strings.ToLower(s.Protocol)
		if p != "tcp" && p != "udp" {
			return fmt.Errorf("%w: notify protocol %q", ErrInvalidDefinition, s.Protocol)
		}
	case OutputSound, OutputWave, OutputNoop:
	default:
		return fmt.Errorf("%w: unknown output kind %q", ErrInvalidDefinition, s.Kind)
	}
	return nil
}
