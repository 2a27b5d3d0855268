package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// WavePhase is the next pending milestone of a digital wave slot.
type WavePhase uint8

const (
	WaveIdle WavePhase = iota
	WavePendingEdgeUp
	WavePendingEdgeDown
	WavePendingEnd
)

func (p WavePhase) String() string {
	switch p {
	case WavePendingEdgeUp:
		return "pending_edge_up"
	case WavePendingEdgeDown:
		return "pending_edge_down"
	case WavePendingEnd:
		return "pending_end"
	}
	return "idle"
}

type digitalSlot struct {
	phase    WavePhase
	edgeUp   time.Duration
	edgeDown time.Duration
	end      time.Duration
}

// DigitalWaves holds the digital scheduled-wave slots of one machine. A slot's
// bit in Active is set iff its phase is not WaveIdle.
type DigitalWaves struct {
	slots  [primitives.MaxWaves]digitalSlot
	active primitives.Bits
}

// Active returns the set of running slots.
func (w *DigitalWaves) Active() primitives.Bits { return w.active }

// Phase returns the phase of slot id.
func (w *DigitalWaves) Phase(id int) WavePhase {
	if id < 0 || id >= primitives.MaxWaves {
		return WaveIdle
	}
	return w.slots[id].phase
}

// Start schedules slot id from now. It reports false when the slot is
// already running.
func (w *DigitalWaves) Start(id int, spec *primitives.WaveSpec, now time.Duration) bool {
	if id < 0 || id >= primitives.MaxWaves || w.active.Has(id) {
		return false
	}
	s := &w.slots[id]
	s.edgeUp = now + time.Duration(spec.PreambleUS)*time.Microsecond
	s.edgeDown = s.edgeUp + time.Duration(spec.SustainUS)*time.Microsecond
	s.end = s.edgeDown + time.Duration(spec.RefractoryUS)*time.Microsecond
	s.phase = WavePendingEdgeUp
	w.active.Set(id)
	return true
}

// Stop deactivates slot id. high reports whether its line was up; ok is false
// when the slot was not running.
func (w *DigitalWaves) Stop(id int) (high, ok bool) {
	if id < 0 || id >= primitives.MaxWaves || !w.active.Has(id) {
		return false, false
	}
	high = w.slots[id].phase == WavePendingEdgeDown
	w.slots[id] = digitalSlot{}
	w.active.Clear(id)
	return high, true
}

// Process advances every running slot to now, calling edge for each edge
// crossed. Several milestones can elapse in one cycle.
func (w *DigitalWaves) Process(now time.Duration, edge func(id int, up bool)) {
	running := w.active
	for {
		id, ok := running.PopLowest()
		if !ok {
			return
		}
		s := &w.slots[id]
		if s.phase == WavePendingEdgeUp && now >= s.edgeUp {
			edge(id, true)
			s.phase = WavePendingEdgeDown
		}
		if s.phase == WavePendingEdgeDown && now >= s.edgeDown {
			edge(id, false)
			s.phase = WavePendingEnd
		}
		if s.phase == WavePendingEnd && now >= s.end {
			*s = digitalSlot{}
			w.active.Clear(id)
		}
	}
}

// processWaves runs both wave engines and returns the events they surfaced.
func (m *Machine) processWaves(out *OutputBatch) primitives.Bits {
	var events primitives.Bits
	r := &m.Active().Routing
	m.waves.Process(m.now, func(id int, up bool) {
		if line := r.WaveLine(id); line >= 0 {
			m.write(out, primitives.Bit(line), boolBits(line, up))
		}
		if ev := r.WaveEvent(id, up); ev >= 0 {
			events.Set(ev)
		}
	})
	m.aowaves.Process(m.analogWrite, func(id, ev int) {
		if ev > r.NumEventCols {
			m.internal(primitives.ErrEventRange, zap.Int("wave", id), zap.Int("event", ev))
			return
		}
		events.Set(ev)
	})
	return events
}

// triggerWaves handles a wave output column: a positive value starts every
// wave whose bit is set, a negative value stops them.
func (m *Machine) triggerWaves(val int, out *OutputBatch) {
	start := val > 0
	if val < 0 {
		val = -val
	}
	primitives.Bits(uint32(val)).Each(func(id int) {
		if start {
			m.startWave(id)
		} else {
			m.stopWave(id, out)
		}
	})
}

func (m *Machine) startWave(id int) {
	started := false
	if spec, ok := m.Active().Wave(id); ok && spec.Enabled {
		if m.waves.Start(id, spec, m.now) {
			started = true
		} else {
			m.opts.logger.Warn("wave already running", zap.Int("machine", m.id), zap.Int("wave", id))
		}
	}
	if m.aowaves.Loaded(id) {
		if m.aowaves.Start(id) {
			started = true
		} else {
			m.opts.logger.Warn("analog wave already running", zap.Int("machine", m.id), zap.Int("wave", id))
		}
	}
	if !started {
		m.opts.logger.Debug("wave start ignored", zap.Int("machine", m.id), zap.Int("wave", id))
	}
}

func (m *Machine) stopWave(id int, out *OutputBatch) {
	stopped := false
	if high, ok := m.waves.Stop(id); ok {
		stopped = true
		if line := m.Active().Routing.WaveLine(id); high && line >= 0 {
			m.write(out, primitives.Bit(line), 0)
		}
	}
	if m.aowaves.Stop(id, m.analogWrite) {
		stopped = true
	}
	if !stopped {
		m.opts.logger.Warn("stop of idle wave", zap.Int("machine", m.id), zap.Int("wave", id))
	}
}

// StopAllWaves aborts every running wave, lowering lines caught mid-pulse.
func (m *Machine) StopAllWaves(out *OutputBatch) {
	m.waves.Active().Each(func(id int) {
		if high, _ := m.waves.Stop(id); high {
			if line := m.Active().Routing.WaveLine(id); line >= 0 {
				m.write(out, primitives.Bit(line), 0)
			}
		}
	})
	m.aowaves.Active().Each(func(id int) { m.aowaves.Stop(id, m.analogWrite) })
}

func boolBits(line int, high bool) primitives.Bits {
	if high {
		return primitives.Bit(line)
	}
	return 0
}
