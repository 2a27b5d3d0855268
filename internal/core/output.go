package core

import (
	"fmt"

	"github.com/comalice/rtfsm/internal/primitives"
)

// OutputBatch accumulates the digital writes of one cycle so they can be
// committed as a single hardware write. Lines outside the allowed set are
// refused.
type OutputBatch struct {
	allowed primitives.Bits
	mask    primitives.Bits
	bits    primitives.Bits
}

// Reset empties the batch and sets the lines writes may touch.
func (b *OutputBatch) Reset(allowed primitives.Bits) {
	b.allowed = allowed
	b.mask, b.bits = 0, 0
}

// SetAllowed changes the lines writes may touch without dropping what is
// already pending.
func (b *OutputBatch) SetAllowed(allowed primitives.Bits) { b.allowed = allowed }

// Write sets every line in mask to the matching bit of bits. A later write to
// the same line in the cycle wins.
func (b *OutputBatch) Write(mask, bits primitives.Bits) error {
	var err error
	if bad := mask &^ b.allowed; !bad.Empty() {
		err = fmt.Errorf("%w: write to line %d which is not an output", primitives.ErrChannelRange, bad.Lowest())
		mask &= b.allowed
	}
	b.mask |= mask
	b.bits = (b.bits &^ mask) | (bits & mask)
	return err
}

// Set writes a single line.
func (b *OutputBatch) Set(line int, high bool) error {
	var bits primitives.Bits
	if high {
		bits = primitives.Bit(line)
	}
	return b.Write(primitives.Bit(line), bits)
}

// Force ORs a forced-high mask into the batch, bypassing the allowed set.
func (b *OutputBatch) Force(mask primitives.Bits) {
	b.mask |= mask
	b.bits |= mask
}

// Pending returns the accumulated (mask, bits) pair.
func (b *OutputBatch) Pending() (mask, bits primitives.Bits) { return b.mask, b.bits }

// Empty reports whether nothing was written this cycle.
func (b *OutputBatch) Empty() bool { return b.mask.Empty() }

// applyOutputs runs the output columns of the current row: continuous lines
// are set to exactly the row's mask, new trigger bits clear the machine's
// previous pulse and restart the sustain timer, and sound, wave and notify
// columns go to their sinks.
func (m *Machine) applyOutputs(out *OutputBatch) {
	def := m.Active()
	row := &def.Rows[m.current]
	var conts, trigs primitives.Bits
	for col := range def.Routing.Outputs {
		spec := &def.Routing.Outputs[col]
		val := row.Outputs[col]
		switch spec.Kind {
		case primitives.OutputDigital:
			conts |= primitives.Bits(uint32(val)<<uint(spec.From)) & spec.Lines()
		case primitives.OutputTrigger:
			trigs |= primitives.Bits(uint32(val)<<uint(spec.From)) & spec.Lines()
		case primitives.OutputSound:
			m.sound(spec.SoundCard, val)
		case primitives.OutputWave:
			m.triggerWaves(val, out)
		case primitives.OutputNotify:
			m.notify(col, spec, val)
		}
	}
	if !trigs.Empty() {
		m.clearTriggers(out)
		m.write(out, trigs, trigs)
		m.trigLines = trigs
		m.trigStart = m.now
	}
	if !m.contMask.Empty() {
		m.write(out, m.contMask, conts)
	}
}

// ExpireTriggers lowers this machine's trigger lines once they have been
// high for the sustain time.
func (m *Machine) ExpireTriggers(out *OutputBatch) {
	if !m.trigLines.Empty() && m.now-m.trigStart >= m.opts.triggerSustain {
		m.clearTriggers(out)
	}
}

func (m *Machine) clearTriggers(out *OutputBatch) {
	if m.trigLines.Empty() {
		return
	}
	m.write(out, m.trigLines, 0)
	m.trigLines = 0
}

// sound drives the virtual sound-trigger sink: positive triggers, negative
// untriggers.
func (m *Machine) sound(card, val int) {
	if m.opts.sound == nil || val == 0 {
		return
	}
	if val > 0 {
		m.opts.sound.Trigger(card, val)
	} else {
		m.opts.sound.Untrigger(card, -val)
	}
}

// notify emits a notification only when the column's value differs from the
// last one sent since routing was configured.
func (m *Machine) notify(col int, spec *primitives.OutputSpec, val int) {
	if m.notified.Has(col) && m.lastNotify[col] == val {
		return
	}
	m.notified.Set(col)
	m.lastNotify[col] = val
	m.opts.sink.Notify(m.id, primitives.Notification{
		Column:   col,
		Value:    val,
		Protocol: spec.Protocol,
		Host:     spec.Host,
		Port:     spec.Port,
		Format:   spec.Format,
	})
}

func (m *Machine) write(out *OutputBatch, mask, bits primitives.Bits) {
	if err := out.Write(mask, bits); err != nil {
		m.internal(err)
	}
}
