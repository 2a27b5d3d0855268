package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/primitives"
)

// ErrRunning is returned by Run when the loop is already running.
var ErrRunning = errors.New("runtime already running")

// Option configures optional collaborators of a Runtime.
type Option func(*Runtime)

// WithClock replaces the wall clock, e.g. with a ManualClock.
func WithClock(c Clock) Option {
	return func(rt *Runtime) { rt.clock = c }
}

// WithAnalogStream supplies the stream used in AnalogModeStream.
func WithAnalogStream(s AnalogStream) Option {
	return func(rt *Runtime) { rt.stream = s }
}

// WithSoundTrigger supplies the sink for sound output columns.
func WithSoundTrigger(s SoundTrigger) Option {
	return func(rt *Runtime) { rt.sound = s }
}

// WithExternalClock stamps transitions with a second timebase.
func WithExternalClock(c ExternalClock) Option {
	return func(rt *Runtime) { rt.ext = c }
}

// Runtime is the fixed-period scan loop driving every machine.
type Runtime struct {
	cfg    Config
	log    *zap.Logger
	limits primitives.Limits

	port   HardwareIOPort
	dir    DirectionConfigurer
	tr     Transport
	clock  Clock
	stream AnalogStream
	sound  SoundTrigger
	ext    ExternalClock

	machines []*core.Machine
	slots    []handoff
	acq      acquisitionHelper

	// Per-cycle state, touched only by the real-time goroutine.
	out                    core.OutputBatch
	digital, prevDigital   primitives.Bits
	analog, prevAnalog     primitives.Bits
	hwState                primitives.Bits
	samples                [primitives.MaxChannels]uint16
	sampled                primitives.Bits
	diInUse, aiInUse       primitives.Bits
	doInUse                primitives.Bits
	dirKnown, dirOut       primitives.Bits
	next                   time.Duration
	cycleStart, cycleSpent time.Duration

	counters counters
	running  atomic.Bool
}

// New builds a runtime over port and tr. Every machine starts paused and
// invalid on the empty definition.
func New(cfg Config, port HardwareIOPort, tr Transport, opts ...Option) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if port == nil || tr == nil {
		return nil, errors.New("port and transport are required")
	}
	rt := &Runtime{
		cfg:    cfg,
		log:    cfg.Logger,
		limits: cfg.Limits(),
		port:   port,
		tr:     tr,
		clock:  NewWallClock(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if d, ok := port.(DirectionConfigurer); ok {
		rt.dir = d
	}
	if cfg.AnalogMode == AnalogModeStream && rt.stream == nil {
		return nil, errors.New("analog mode stream needs an AnalogStream")
	}
	rt.acq.init()

	sink := machineSink{rt}
	rt.slots = make([]handoff, cfg.Machines)
	rt.machines = make([]*core.Machine, 0, cfg.Machines)
	for i := range rt.slots {
		rt.slots[i].wake = make(chan struct{}, 1)
		mopts := []core.Option{
			core.WithLogger(rt.log),
			core.WithSink(sink),
			core.WithAnalogWriter(port),
			core.WithHistoryCapacity(cfg.HistoryCapacity),
			core.WithTriggerSustain(cfg.TriggerSustain),
			core.WithAONeutral(cfg.AONeutral),
			core.WithReconfigure(rt.reconfigureIO),
		}
		if rt.sound != nil {
			mopts = append(mopts, core.WithSoundTrigger(rt.sound))
		}
		rt.machines = append(rt.machines, core.NewMachine(i, mopts...))
	}
	rt.reconfigureIO(nil)
	return rt, nil
}

// Config returns the effective configuration.
func (rt *Runtime) Config() Config { return rt.cfg }

// Machines returns the number of machines.
func (rt *Runtime) Machines() int { return len(rt.machines) }

// Machine exposes machine i for introspection and tests. Its run state is
// owned by the loop.
func (rt *Runtime) Machine(i int) *core.Machine { return rt.machines[i] }

// Clock returns the loop's clock.
func (rt *Runtime) Clock() Clock { return rt.clock }

// Run drives the loop on an absolute schedule until ctx is done or a manual
// clock runs out, and starts the helper goroutines for its duration. It
// returns nil on a normal stop.
func (rt *Runtime) Run(ctx context.Context) error {
	if !rt.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer rt.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	wait := rt.StartHelpers(ctx)
	defer func() {
		cancel()
		wait()
	}()

	rt.log.Info("runtime started",
		zap.Int("machines", len(rt.machines)),
		zap.Duration("period", rt.cfg.Period),
		zap.String("analog_mode", string(rt.cfg.AnalogMode)))

	rt.next = rt.clock.Now()
	for {
		if err := rt.clock.SleepUntil(ctx, rt.next); err != nil {
			if errors.Is(err, ErrClockStopped) || ctx.Err() != nil {
				rt.log.Info("runtime stopped", zap.Uint64("cycles", rt.counters.cycles.Load()))
				return nil
			}
			return err
		}
		woke := rt.clock.Now()
		if jitter := woke - rt.next; jitter.Abs() > rt.cfg.JitterTolerance {
			rt.counters.jitters.Add(1)
			rt.log.Debug("wake jitter", zap.Duration("jitter", jitter))
			if jitter > 0 {
				rt.counters.resyncs.Add(1)
				rt.next = woke
			}
		}
		rt.Cycle()
		if rt.cycleSpent > rt.cfg.Period {
			rt.counters.resyncs.Add(1)
			rt.next = rt.clock.Now()
		}
		rt.next += rt.cfg.Period
	}
}

// StartHelpers launches one helper goroutine per machine plus the shared
// acquisition helper, and returns a function that waits for them after ctx
// is done. Run calls it; drivers that step with Cycle call it themselves
// unless InlineHelpers is set.
func (rt *Runtime) StartHelpers(ctx context.Context) (wait func()) {
	if rt.cfg.InlineHelpers {
		return func() {}
	}
	var wg sync.WaitGroup
	for i := range rt.slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt.helperLoop(ctx, i)
		}(i)
	}
	if rt.stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.acq.loop(ctx, rt)
		}()
	}
	return wg.Wait
}

// Cycle runs one loop iteration. A panic inside the cycle is recovered,
// logged and counted as an internal error.
func (rt *Runtime) Cycle() {
	defer func() {
		if r := recover(); r != nil {
			rt.counters.internalErrors.Add(1)
			rt.log.Error("panic in cycle",
				zap.Uint64("cycle", rt.counters.cycles.Load()),
				zap.Bool("internal", true),
				zap.Any("panic", r))
		}
		rt.counters.cycles.Add(1)
	}()
	rt.processCycle()
}

// reconfigureIO recomputes the global in-use masks and line directions from
// every machine's active routing.
func (rt *Runtime) reconfigureIO(*core.Machine) {
	var di, ai, do primitives.Bits
	for _, m := range rt.machines {
		r := &m.Active().Routing
		if r.Analog() {
			ai |= r.InputChannels()
		} else {
			di |= r.InputChannels()
		}
		do |= r.ContinuousMask() | r.TriggerMask() | r.WaveLines()
	}
	rt.diInUse, rt.aiInUse, rt.doInUse = di, ai, do
	rt.out.SetAllowed(do)
	if rt.dir == nil {
		return
	}
	(di | do).Each(func(line int) {
		output := do.Has(line)
		if rt.dirKnown.Has(line) && rt.dirOut.Has(line) == output {
			return
		}
		if err := rt.dir.ConfigureLine(line, output); err != nil {
			rt.counters.ioErrors.Add(1)
			rt.log.Warn("configure line", zap.Int("line", line), zap.Bool("output", output), zap.Error(err))
			return
		}
		rt.dirKnown.Set(line)
		if output {
			rt.dirOut.Set(line)
		} else {
			rt.dirOut.Clear(line)
		}
	})
}

// machineSink forwards machine output to the transport, counting drops.
type machineSink struct{ rt *Runtime }

func (s machineSink) Transition(m int, t primitives.StateTransition) {
	if !s.rt.tr.Transition(m, t) {
		s.rt.drop(m, "transition")
	}
}

func (s machineSink) Notify(m int, n primitives.Notification) {
	if !s.rt.tr.Notify(m, n) {
		s.rt.drop(m, "notification")
	}
}

func (s machineSink) InternalError(int, error) {
	s.rt.counters.internalErrors.Add(1)
}

func (rt *Runtime) drop(m int, what string) {
	rt.counters.dropped.Add(1)
	rt.log.Warn("outbound queue full, dropped", zap.Int("machine", m), zap.String("kind", what))
}
