// Package rtfsm runs table-driven finite state machines on a fixed-period
// scan loop for behavioral experiments. A control program builds a
// Definition, uploads it through a Client and reads back state transitions
// while the loop samples inputs and drives outputs.
package rtfsm

import (
	"context"
	"fmt"

	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/internal/production"
	"github.com/comalice/rtfsm/realtime"
)

type (
	Definition       = primitives.Definition
	Row              = primitives.Row
	Routing          = primitives.Routing
	OutputSpec       = primitives.OutputSpec
	WaveSpec         = primitives.WaveSpec
	AnalogWaveUpload = primitives.AnalogWaveUpload
	StateTransition  = primitives.StateTransition
	Notification     = primitives.Notification
	DAQScan          = primitives.DAQScan
	AcquisitionInfo  = primitives.AcquisitionInfo
	Bits             = primitives.Bits
)

// EventTimeout is the event recorded for timeout transitions.
const EventTimeout = primitives.EventTimeout

var (
	DigitalOut = primitives.DigitalOut
	TriggerOut = primitives.TriggerOut
	SoundOut   = primitives.SoundOut
	WaveOut    = primitives.WaveOut
	NotifyOut  = primitives.NotifyOut
)

// System wires a runtime to a channel transport and hands out one Client
// per machine.
type System struct {
	Runtime   *realtime.Runtime
	Transport *production.ChannelTransport
	clients   []*Client
}

// NewSystem builds the runtime for cfg on port.
func NewSystem(cfg realtime.Config, port realtime.HardwareIOPort, opts ...realtime.Option) (*System, error) {
	effective := realtime.DefaultConfig()
	if cfg.Machines > 0 {
		effective.Machines = cfg.Machines
	}
	tr := production.NewChannelTransport(effective.Machines)
	rt, err := realtime.New(cfg, port, tr, opts...)
	if err != nil {
		return nil, fmt.Errorf("new runtime: %w", err)
	}
	s := &System{Runtime: rt, Transport: tr}
	for i := 0; i < rt.Machines(); i++ {
		s.clients = append(s.clients, NewClient(tr, i, WithClientLogger(rt.Config().Logger)))
	}
	return s, nil
}

// Client returns the client of machine i.
func (s *System) Client(i int) *Client { return s.clients[i] }

// Run drives the loop until ctx is done.
func (s *System) Run(ctx context.Context) error { return s.Runtime.Run(ctx) }
