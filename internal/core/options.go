package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// Option applies configuration to Machine via functional options pattern.
type Option func(*Machine)

type options struct {
	logger         *zap.Logger
	sink           Sink
	sound          SoundTrigger
	analog         AnalogWriter
	historyCap     int
	triggerSustain time.Duration
	aoNeutral      uint16
	onReconfigure  func(*Machine)
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		sink:           nopSink{},
		historyCap:     primitives.DefaultHistoryCapacity,
		triggerSustain: time.Millisecond,
	}
}

// WithLogger sets the machine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.opts.logger = l
		}
	}
}

// WithSink routes transitions, notifications and internal errors.
func WithSink(s Sink) Option {
	return func(m *Machine) {
		if s != nil {
			m.opts.sink = s
		}
	}
}

// WithSoundTrigger sets the sink for sound output columns.
func WithSoundTrigger(s SoundTrigger) Option {
	return func(m *Machine) { m.opts.sound = s }
}

// WithAnalogWriter sets where analog wave samples are written.
func WithAnalogWriter(w AnalogWriter) Option {
	return func(m *Machine) { m.opts.analog = w }
}

// WithHistoryCapacity sizes the transition ring.
func WithHistoryCapacity(n int) Option {
	return func(m *Machine) { m.opts.historyCap = n }
}

// WithTriggerSustain sets how long trigger outputs stay high.
func WithTriggerSustain(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.opts.triggerSustain = d
		}
	}
}

// WithAONeutral sets the sample written when an analog wave stops.
func WithAONeutral(s uint16) Option {
	return func(m *Machine) { m.opts.aoNeutral = s }
}

// WithReconfigure registers a callback run whenever the active definition's
// routing changes.
func WithReconfigure(fn func(*Machine)) Option {
	return func(m *Machine) { m.opts.onReconfigure = fn }
}

type nopSink struct{}

func (nopSink) Transition(int, primitives.StateTransition) {}
func (nopSink) Notify(int, primitives.Notification)        {}
func (nopSink) InternalError(int, error)                   {}
