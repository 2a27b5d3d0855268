package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/internal/production"
)

// rig steps a runtime by hand on a manual clock with inline helpers.
type rig struct {
	t     *testing.T
	clock *ManualClock
	port  *extensibility.SimPort
	tr    *production.ChannelTransport
	rt    *Runtime
	seq   uint64
}

func newRig(t *testing.T, cfg Config, opts ...Option) *rig {
	t.Helper()
	if cfg.Machines == 0 {
		cfg.Machines = 1
	}
	return newRigWith(t, cfg, production.NewChannelTransport(cfg.Machines), opts...)
}

func newRigWith(t *testing.T, cfg Config, tr *production.ChannelTransport, opts ...Option) *rig {
	t.Helper()
	if cfg.Machines == 0 {
		cfg.Machines = tr.Machines()
	}
	cfg.InlineHelpers = true
	r := &rig{t: t, clock: NewManualClock(0), tr: tr}
	r.port = extensibility.NewSimPort(extensibility.WithTimeSource(r.clock.Now))
	rt, err := New(cfg, r.port, r.tr, append([]Option{WithClock(r.clock)}, opts...)...)
	require.NoError(t, err)
	r.rt = rt
	return r
}

// cycles runs n cycles, one period apart.
func (r *rig) cycles(n int) {
	for i := 0; i < n; i++ {
		r.rt.Cycle()
		r.clock.Advance(r.rt.cfg.Period)
	}
}

// send submits cmd to machine m and cycles until its reply arrives.
func (r *rig) send(m int, cmd primitives.Command) primitives.Reply {
	r.t.Helper()
	r.seq++
	cmd.Seq = r.seq
	require.NoError(r.t, r.tr.Submit(context.Background(), m, cmd))
	for i := 0; i < 8; i++ {
		r.cycles(1)
		select {
		case rep := <-r.tr.Replies(m):
			require.Equal(r.t, cmd.Seq, rep.Seq)
			require.Equal(r.t, cmd.Kind, rep.Kind)
			return rep
		default:
		}
	}
	r.t.Fatalf("no reply to %s", cmd.Kind)
	return primitives.Reply{}
}

// load replaces machine m's definition and starts it.
func (r *rig) load(m int, def *primitives.Definition) {
	r.t.Helper()
	rep := r.send(m, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: def})
	require.NoError(r.t, rep.Err)
	require.True(r.t, rep.Flag)
	rep = r.send(m, primitives.Command{Kind: primitives.CmdPauseToggle})
	require.False(r.t, rep.Flag)
}

// timeoutDef: row 0 times out after 100 ms to row 1; event 0 returns to
// row 0. Channel 0 edge-up routes to event 0; row 1 drives line 8.
func timeoutDef() *primitives.Definition {
	return &primitives.Definition{
		Name: "timeout",
		Rows: []primitives.Row{
			primitives.NewRow(0, 1, 1).After(100_000, 1),
			primitives.NewRow(1, 1, 1).On(0, 0).Output(0, 1),
		},
		Routing: primitives.Routing{
			InputType:    primitives.InputDigital,
			NumInChans:   1,
			InputEvents:  []int{0, primitives.NoRoute},
			NumEventCols: 1,
			Outputs:      []primitives.OutputSpec{primitives.DigitalOut(8, 8)},
		},
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
