package primitives

import "fmt"

// WaveSpec declares a digital scheduled wave: after Preamble the routed line
// goes high for Sustain, then the slot stays busy for Refractory.
type WaveSpec struct {
	ID           int   `json:"id" yaml:"id"`
	Enabled      bool  `json:"enabled" yaml:"enabled"`
	PreambleUS   int64 `json:"preamble_us" yaml:"preamble_us"`
	SustainUS    int64 `json:"sustain_us" yaml:"sustain_us"`
	RefractoryUS int64 `json:"refractory_us" yaml:"refractory_us"`
}

// Validate checks the wave id and durations.
func (w *WaveSpec) Validate() error {
	if w.ID < 0 || w.ID >= MaxWaves {
		return fmt.Errorf("%w: wave %d", ErrWaveRange, w.ID)
	}
	if w.PreambleUS < 0 || w.SustainUS < 0 || w.RefractoryUS < 0 {
		return fmt.Errorf("%w: wave %d has a negative duration", ErrInvalidDefinition, w.ID)
	}
	return nil
}

// AnalogWaveUpload carries the sample table for an analog wave slot. Events
// holds one event id per sample (-1 for none).
type AnalogWaveUpload struct {
	ID      int      `json:"id" yaml:"id"`
	Line    int      `json:"line" yaml:"line"`
	Loop    bool     `json:"loop" yaml:"loop"`
	Samples []uint16 `json:"samples" yaml:"samples"`
	Events  []int8   `json:"events,omitempty" yaml:"events,omitempty"`
}
