package core

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// dispatch pops the lowest event id until the set is empty. Each id is
// resolved against the state current at the time it is popped. The ids were
// detected against from; once a transition swaps in another definition the
// rest of the set is dropped. At most NumEventCols+1 ids can be legal, so
// more pops than that is an internal error.
func (m *Machine) dispatch(from *primitives.Definition, events primitives.Bits, out *OutputBatch) {
	for n := 0; !events.Empty(); n++ {
		def := m.Active()
		if def != from {
			m.opts.logger.Debug("events dropped after swap",
				zap.Int("machine", m.id), zap.Int("state", m.current), zap.Int("events", events.Count()))
			return
		}
		if n > def.Routing.NumEventCols {
			m.internal(fmt.Errorf("dispatch bound exceeded with %d events left", events.Count()),
				zap.Int("state", m.current))
			return
		}
		ev, _ := events.PopLowest()
		row := &def.Rows[m.current]
		var next int
		switch {
		case ev == def.Routing.NumEventCols:
			next = row.TimeoutState
		case ev < def.Routing.NumEventCols:
			next = row.Input[ev]
		default:
			m.internal(fmt.Errorf("%w: %d (columns=%d)", primitives.ErrEventRange, ev, def.Routing.NumEventCols),
				zap.Int("state", m.current), zap.Int("event", ev))
			continue
		}
		_ = m.gotoState(next, ev, out)
	}
}

// gotoState enters next. The ready-for-trial gate redirects to row 0 and
// aborts running waves; entering row 0 clears the gate and commits a pending
// swap. Every entry is recorded, self-transitions included, but only a real
// state change restarts the timer and re-applies outputs. A self-transition
// restarts the timer only when it was timeout-triggered.
func (m *Machine) gotoState(next, event int, out *OutputBatch) error {
	def := m.Active()
	if next < 0 || next >= def.NumRows() {
		err := fmt.Errorf("%w: transition to %d (rows=%d)", primitives.ErrStateRange, next, def.NumRows())
		m.internal(err, zap.Int("state", m.current), zap.Int("event", event))
		return err
	}
	if m.readyForTrial && def.ReadyForTrialState > 0 && next == def.ReadyForTrialState {
		next = 0
		m.StopAllWaves(out)
	}
	swapped := false
	if IsCommitPoint(next) {
		m.readyForTrial = false
		if m.swap == SwapPending {
			m.commitSwap()
			swapped = true
		}
	}

	prev := m.current
	m.previous, m.current = prev, next
	t := primitives.StateTransition{
		Previous: prev,
		State:    next,
		TS:       m.now,
		ExtTS:    m.ext,
		Event:    event,
	}
	m.history.Push(t)
	m.opts.sink.Transition(m.id, t)

	if prev == next && !swapped {
		if event == primitives.EventTimeout {
			m.timerStart = m.now
		}
		return nil
	}
	m.timerStart = m.now
	m.applyOutputs(out)
	return nil
}
