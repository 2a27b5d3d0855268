package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/primitives"
)

var testLimits = primitives.Limits{DigitalChannels: 32, AnalogInChannels: 8, AnalogOutChannels: 2}

type recorder struct {
	transitions []primitives.StateTransition
	notes       []primitives.Notification
	internal    []error
}

func (r *recorder) Transition(_ int, t primitives.StateTransition) {
	r.transitions = append(r.transitions, t)
}
func (r *recorder) Notify(_ int, n primitives.Notification) { r.notes = append(r.notes, n) }
func (r *recorder) InternalError(_ int, err error)          { r.internal = append(r.internal, err) }

type soundRecorder struct{ calls []int }

func (s *soundRecorder) Trigger(card, trig int)   { s.calls = append(s.calls, trig) }
func (s *soundRecorder) Untrigger(card, trig int) { s.calls = append(s.calls, -trig) }

type aoRecorder struct {
	writes []uint16
}

func (a *aoRecorder) WriteAnalog(_ int, s uint16) error {
	a.writes = append(a.writes, s)
	return nil
}

func newBatch() *OutputBatch {
	out := &OutputBatch{}
	out.Reset(^primitives.Bits(0))
	return out
}

// load installs def through the replace path and unpauses the machine.
func load(t *testing.T, m *Machine, def *primitives.Definition) {
	t.Helper()
	buf := m.PrepareReplace()
	buf.Def = def.Clone()
	require.NoError(t, m.FinalizeReplace(testLimits, newBatch()))
	require.True(t, m.Valid())
	if m.Paused() {
		m.TogglePause()
	}
}

// stepAt refreshes the machine to now and runs one cycle.
func stepAt(m *Machine, now time.Duration, in Inputs) *OutputBatch {
	out := newBatch()
	m.Refresh(now, 0)
	m.ExpireTriggers(out)
	m.Step(in, out)
	return out
}

// timeoutDef: row 0 times out after 100 ms to row 1; event 0 returns to row 0.
// Channel 0 edge-up routes to event 0.
func timeoutDef() *primitives.Definition {
	return &primitives.Definition{
		Name: "timeout",
		Rows: []primitives.Row{
			primitives.NewRow(0, 2, 0).After(100_000, 1),
			primitives.NewRow(1, 2, 0).On(0, 0),
		},
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			NumInChans:   1,
			InputEvents:  []int{0, 1},
			NumEventCols: 2,
		},
	}
}
