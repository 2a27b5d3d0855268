package core

import (
	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// SwapState tracks an accepted replacement that waits for the commit point.
type SwapState uint8

const (
	SwapNone SwapState = iota
	SwapPending
)

func (s SwapState) String() string {
	if s == SwapPending {
		return "pending"
	}
	return "none"
}

// IsCommitPoint reports whether entering state may commit a pending swap.
// Row 0 is the start of a trial and the only safe point.
func IsCommitPoint(state int) bool { return state == 0 }

// DefinitionBuffer is one of a machine's two definition slots.
type DefinitionBuffer struct {
	Def *primitives.Definition
}

// Standby returns the inactive buffer. It is the only buffer the helper
// context is ever given, and only while the handoff slot is busy.
func (m *Machine) Standby() *DefinitionBuffer { return &m.bufs[1-m.active] }

// PrepareReplace hands out the standby buffer for a new replacement. An
// uncommitted pending swap is superseded since its buffer is about to be
// overwritten.
func (m *Machine) PrepareReplace() *DefinitionBuffer {
	m.swap = SwapNone
	return m.Standby()
}

// FinalizeReplace validates the candidate in the standby buffer against the
// hardware limits. A rejected candidate leaves the machine paused and invalid
// on the empty definition, history kept. An accepted one is swapped in now,
// or at the next entry of row 0 when it asks for a deferred swap and the
// machine is already running a valid definition.
func (m *Machine) FinalizeReplace(limits primitives.Limits, out *OutputBatch) error {
	cand := m.Standby().Def
	if cand == nil {
		cand = m.empty
	}
	if err := cand.ValidateAgainst(limits); err != nil {
		m.opts.logger.Warn("definition rejected", zap.Int("machine", m.id), zap.Error(err))
		m.RejectDefinition(out)
		return err
	}
	for _, w := range cand.Warnings() {
		m.opts.logger.Warn(w, zap.Int("machine", m.id), zap.String("definition", cand.Name))
	}
	if cand.DeferSwap && m.valid {
		m.swap = SwapPending
		return nil
	}
	m.commitSwap()
	return nil
}

// RejectDefinition lowers the machine's lines, stops its waves and leaves it
// paused and invalid on the empty definition. The history is kept.
func (m *Machine) RejectDefinition(out *OutputBatch) {
	m.StopAllWaves(out)
	if lines := m.contMask | m.trigMask | m.forcedOutput; !lines.Empty() {
		m.write(out, lines, 0)
	}
	m.bufs[0].Def, m.bufs[1].Def = m.empty, m.empty
	m.initRunState()
	m.reconfigure()
}

// commitSwap makes the standby buffer active and releases the analog wave
// buffers, which belong to the outgoing definition. A smaller table that no
// longer contains the current state sends the machine to row 0.
func (m *Machine) commitSwap() {
	m.aowaves.ReleaseAll(m.analogWrite)
	m.active = 1 - m.active
	m.swap = SwapNone
	if m.current >= m.Active().NumRows() {
		m.current = 0
	}
	m.valid = true
	m.reconfigure()
	m.opts.logger.Info("definition swapped in",
		zap.Int("machine", m.id),
		zap.String("definition", m.Active().Name),
		zap.String("version", m.Active().Version))
}

// reconfigure recomputes the masks derived from routing and forgets the
// last notified values.
func (m *Machine) reconfigure() {
	r := &m.Active().Routing
	m.contMask = r.ContinuousMask()
	m.trigMask = r.TriggerMask()
	m.forcedOutput &= m.contMask
	m.trigLines &= m.trigMask
	m.notified = 0
	if m.opts.onReconfigure != nil {
		m.opts.onReconfigure(m)
	}
}
