package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/realtime"
)

func toggleDef() *primitives.Definition {
	return &primitives.Definition{
		Name: "toggle",
		Rows: []primitives.Row{
			primitives.NewRow(0, 1, 0).On(0, 1),
			primitives.NewRow(1, 1, 0).After(20_000, 0),
		},
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			FirstInChan:  2,
			NumInChans:   1,
			InputEvents:  []int{0, primitives.NoRoute},
			NumEventCols: 1,
		},
	}
}

func TestHarnessScriptedRun(t *testing.T) {
	script := append(extensibility.Pulse(2, 10*time.Millisecond, time.Millisecond),
		extensibility.Pulse(2, 50*time.Millisecond, time.Millisecond)...)
	h := NewHarness(t, realtime.Config{}, WithPortOptions(extensibility.WithScript(script)))
	h.Load(0, toggleDef())
	h.RunFor(100 * time.Millisecond)

	got := h.Transitions(0)
	assert.Equal(t, []int{1, 0, 1, 0}, States(got))
	assert.True(t, h.Port.ScriptDone())
	assert.Equal(t, 4, h.Send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count)
}

func TestHarnessMultipleMachines(t *testing.T) {
	h := NewHarness(t, realtime.Config{Machines: 3})
	h.Load(2, toggleDef())
	require.True(t, h.Send(2, primitives.Command{Kind: primitives.CmdGetValid}).Flag)
	assert.False(t, h.Send(0, primitives.Command{Kind: primitives.CmdGetValid}).Flag)
	assert.Equal(t, 3, h.Runtime.Machines())
}
