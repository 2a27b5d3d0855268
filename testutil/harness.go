// Package testutil drives a runtime deterministically on simulated
// hardware: manual clock, inline helpers, scripted inputs.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/internal/production"
	"github.com/comalice/rtfsm/realtime"
)

// Harness steps a runtime one cycle at a time.
type Harness struct {
	TB        testing.TB
	Clock     *realtime.ManualClock
	Port      *extensibility.SimPort
	Transport *production.ChannelTransport
	Runtime   *realtime.Runtime

	seq uint64
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	portOpts []extensibility.PortOption
	trOpts   []production.TransportOption
	rtOpts   []realtime.Option
}

// WithPortOptions passes options to the simulated port.
func WithPortOptions(opts ...extensibility.PortOption) HarnessOption {
	return func(c *harnessConfig) { c.portOpts = append(c.portOpts, opts...) }
}

// WithTransportOptions passes options to the channel transport.
func WithTransportOptions(opts ...production.TransportOption) HarnessOption {
	return func(c *harnessConfig) { c.trOpts = append(c.trOpts, opts...) }
}

// WithRuntimeOptions passes options to the runtime.
func WithRuntimeOptions(opts ...realtime.Option) HarnessOption {
	return func(c *harnessConfig) { c.rtOpts = append(c.rtOpts, opts...) }
}

// NewHarness builds a runtime for cfg with InlineHelpers forced on. Zero
// Machines means one.
func NewHarness(tb testing.TB, cfg realtime.Config, opts ...HarnessOption) *Harness {
	tb.Helper()
	var hc harnessConfig
	for _, opt := range opts {
		opt(&hc)
	}
	if cfg.Machines == 0 {
		cfg.Machines = 1
	}
	cfg.InlineHelpers = true

	h := &Harness{TB: tb, Clock: realtime.NewManualClock(0)}
	h.Port = extensibility.NewSimPort(append([]extensibility.PortOption{extensibility.WithTimeSource(h.Clock.Now)}, hc.portOpts...)...)
	h.Transport = production.NewChannelTransport(cfg.Machines, hc.trOpts...)
	rt, err := realtime.New(cfg, h.Port, h.Transport, append([]realtime.Option{realtime.WithClock(h.Clock)}, hc.rtOpts...)...)
	if err != nil {
		tb.Fatalf("new runtime: %v", err)
	}
	h.Runtime = rt
	return h
}

// Step runs n cycles, one period apart.
func (h *Harness) Step(n int) {
	period := h.Runtime.Config().Period
	for i := 0; i < n; i++ {
		h.Runtime.Cycle()
		h.Clock.Advance(period)
	}
}

// RunFor runs as many cycles as fit in d.
func (h *Harness) RunFor(d time.Duration) {
	h.Step(int(d / h.Runtime.Config().Period))
}

// Send submits cmd to machine m and steps until the reply arrives.
func (h *Harness) Send(m int, cmd primitives.Command) primitives.Reply {
	h.TB.Helper()
	h.seq++
	cmd.Seq = h.seq
	select {
	case <-h.Transport.Replies(m):
		h.TB.Fatalf("machine %d has an unread reply", m)
	default:
	}
	if err := h.Transport.Submit(context.Background(), m, cmd); err != nil {
		h.TB.Fatalf("submit %s: %v", cmd.Kind, err)
	}
	for i := 0; i < 8; i++ {
		h.Step(1)
		select {
		case r := <-h.Transport.Replies(m):
			return r
		default:
		}
	}
	h.TB.Fatalf("no reply to %s on machine %d", cmd.Kind, m)
	return primitives.Reply{}
}

// Load replaces machine m's definition and unpauses it.
func (h *Harness) Load(m int, def *primitives.Definition) {
	h.TB.Helper()
	if r := h.Send(m, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: def}); r.Err != nil {
		h.TB.Fatalf("replace definition: %v", r.Err)
	}
	if r := h.Send(m, primitives.Command{Kind: primitives.CmdGetPause}); r.Flag {
		h.Send(m, primitives.Command{Kind: primitives.CmdPauseToggle})
	}
}

// Transitions drains machine m's transition stream.
func (h *Harness) Transitions(m int) []primitives.StateTransition {
	return h.Transport.DrainTransitions(m)
}

// States returns the entered states of ts in order.
func States(ts []primitives.StateTransition) []int {
	out := make([]int, len(ts))
	for i, t := range ts {
		out[i] = t.State
	}
	return out
}
