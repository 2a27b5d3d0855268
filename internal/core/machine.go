// Package core holds the per-machine execution model: run state, event
// detection, transition dispatch, output computation, the two wave engines and
// the definition swap. Everything here runs on the real-time goroutine
// except where a method says otherwise; nothing allocates or blocks on the
// cycle path.
package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// Sink receives what a machine emits during a cycle. Implementations must not
// block.
type Sink interface {
	Transition(machine int, t primitives.StateTransition)
	Notify(machine int, n primitives.Notification)
	InternalError(machine int, err error)
}

// SoundTrigger is the virtual sound-trigger sink.
type SoundTrigger interface {
	Trigger(card, trig int)
	Untrigger(card, trig int)
}

// AnalogWriter writes one raw sample to an analog output line.
type AnalogWriter interface {
	WriteAnalog(ch int, sample uint16) error
}

// Inputs is this cycle's classified input levels and the previous cycle's.
type Inputs struct {
	Digital, PrevDigital primitives.Bits
	Analog, PrevAnalog   primitives.Bits
}

// MachineStatus is a read-only summary for introspection.
type MachineStatus struct {
	ID            int             `json:"id" yaml:"id"`
	Definition    string          `json:"definition" yaml:"definition"`
	Version       string          `json:"version" yaml:"version"`
	Rows          int             `json:"rows" yaml:"rows"`
	State         int             `json:"state" yaml:"state"`
	Previous      int             `json:"previous" yaml:"previous"`
	Valid         bool            `json:"valid" yaml:"valid"`
	Paused        bool            `json:"paused" yaml:"paused"`
	ReadyForTrial bool            `json:"ready_for_trial" yaml:"ready_for_trial"`
	SwapPending   bool            `json:"swap_pending" yaml:"swap_pending"`
	Transitions   int             `json:"transitions" yaml:"transitions"`
	Runtime       time.Duration   `json:"runtime" yaml:"runtime"`
	Waves         primitives.Bits `json:"waves" yaml:"waves"`
	AnalogWaves   primitives.Bits `json:"analog_waves" yaml:"analog_waves"`
	Acquisition   primitives.Bits `json:"acquisition" yaml:"acquisition"`
}

// Machine is the run state of one FSM context. It owns two definition
// buffers; exactly one is active.
type Machine struct {
	id    int
	opts  options
	empty *primitives.Definition

	bufs   [2]DefinitionBuffer
	active int
	swap   SwapState

	current, previous int

	clock      time.Duration // runtime clock at the last Refresh
	epoch      time.Duration // runtime clock at init
	now        time.Duration // clock - epoch
	ext        int64
	timerStart time.Duration

	forcedEvent   int
	forcedTimeout bool
	valid         bool
	paused        bool
	readyForTrial bool

	waves   DigitalWaves
	aowaves AnalogWaves

	contMask, trigMask primitives.Bits
	trigLines          primitives.Bits
	trigStart          time.Duration
	forcedOutput       primitives.Bits
	acquisition        primitives.Bits

	notified   primitives.Bits
	lastNotify [primitives.MaxOutputCols]int

	history *History
}

// NewMachine creates a machine holding the empty definition, paused and
// invalid.
func NewMachine(id int, opts ...Option) *Machine {
	m := &Machine{
		id:   id,
		opts: defaultOptions(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.empty = primitives.EmptyDefinition()
	m.history = NewHistory(m.opts.historyCap)
	m.aowaves.neutral = m.opts.aoNeutral
	m.bufs[0].Def, m.bufs[1].Def = m.empty, m.empty
	m.initRunState()
	m.reconfigure()
	return m
}

func (m *Machine) initRunState() {
	m.current, m.previous = 0, 0
	m.epoch = m.clock
	m.now = 0
	m.timerStart = 0
	m.forcedEvent = primitives.NoRoute
	m.forcedTimeout = false
	m.valid = false
	m.paused = true
	m.readyForTrial = false
	m.swap = SwapNone
	m.trigLines = 0
	m.forcedOutput = 0
}

// ID returns the machine index.
func (m *Machine) ID() int { return m.id }

// Refresh sets the machine's timestamps for this cycle from the runtime
// clock and the external clock.
func (m *Machine) Refresh(clock time.Duration, ext int64) {
	m.clock = clock
	m.now = clock - m.epoch
	m.ext = ext
}

// Step runs one cycle of a valid machine: timeout expiry, forced overrides,
// edge detection and waves (unless paused), then dispatch.
func (m *Machine) Step(in Inputs, out *OutputBatch) {
	if !m.valid {
		return
	}
	def := m.Active()
	row := &def.Rows[m.current]
	timeoutState := row.TimeoutState
	timedOut := false
	var events primitives.Bits

	if m.forcedTimeout {
		m.forcedTimeout = false
		timedOut = row.HasTimeout()
	}
	if m.forcedEvent >= 0 {
		events.Set(m.forcedEvent)
		m.forcedEvent = primitives.NoRoute
	}
	if !m.paused {
		if row.HasTimeout() && m.now-m.timerStart >= time.Duration(row.TimeoutUS)*time.Microsecond {
			timedOut = true
		}
		if def.Routing.Analog() {
			events |= DetectEdges(&def.Routing, in.Analog, in.PrevAnalog)
		} else {
			events |= DetectEdges(&def.Routing, in.Digital, in.PrevDigital)
		}
		events |= m.processWaves(out)
	}
	if timedOut {
		_ = m.gotoState(timeoutState, primitives.EventTimeout, out)
	}
	m.dispatch(def, events, out)
}

// Active returns the definition in force.
func (m *Machine) Active() *primitives.Definition { return m.bufs[m.active].Def }

// Current returns the current state.
func (m *Machine) Current() int { return m.current }

// Previous returns the state left by the last transition.
func (m *Machine) Previous() int { return m.previous }

// Valid reports whether the machine runs its definition.
func (m *Machine) Valid() bool { return m.valid }

// Paused reports whether input detection and timers are suspended.
func (m *Machine) Paused() bool { return m.paused }

// ReadyForTrialFlag reports whether the next entry of the ready-for-trial
// state is redirected to row 0.
func (m *Machine) ReadyForTrialFlag() bool { return m.readyForTrial }

// Runtime returns the time elapsed since the machine was initialized.
func (m *Machine) Runtime() time.Duration { return m.now }

// History returns the transition ring.
func (m *Machine) History() *History { return m.history }

// Swap reports whether a replacement waits for row 0.
func (m *Machine) Swap() SwapState { return m.swap }

// ContinuousMask returns the lines of the continuous output columns.
func (m *Machine) ContinuousMask() primitives.Bits { return m.contMask }

// TriggerMask returns the lines of the pulsed trigger columns.
func (m *Machine) TriggerMask() primitives.Bits { return m.trigMask }

// ForcedOutputs returns the lines held high by ForceOutput.
func (m *Machine) ForcedOutputs() primitives.Bits { return m.forcedOutput }

// Acquisition returns the analog channels published each cycle.
func (m *Machine) Acquisition() primitives.Bits { return m.acquisition }

// DigitalWaves returns the digital wave slots.
func (m *Machine) DigitalWaves() *DigitalWaves { return &m.waves }

// AnalogWaves returns the analog wave slots.
func (m *Machine) AnalogWaves() *AnalogWaves { return &m.aowaves }

// TogglePause flips the paused flag and restarts the state timer.
func (m *Machine) TogglePause() bool {
	m.paused = !m.paused
	m.timerStart = m.now
	return m.paused
}

// Invalidate freezes the machine; its buffers are kept.
func (m *Machine) Invalidate() { m.valid = false }

// ForceEvent queues a one-shot event for the next step.
func (m *Machine) ForceEvent(id int) error {
	if id < 0 || id >= m.Active().Routing.NumEventCols {
		return primitives.ErrEventRange
	}
	m.forcedEvent = id
	return nil
}

// ForceTimeout makes the next step treat the state's timeout as expired, if
// it has one.
func (m *Machine) ForceTimeout() { m.forcedTimeout = true }

// ForceSound triggers on the card of the first sound column, or on the card
// numbered like the machine when there is none.
func (m *Machine) ForceSound(trig int) {
	card := m.id
	for _, spec := range m.Active().Routing.Outputs {
		if spec.Kind == primitives.OutputSound {
			card = spec.SoundCard
			break
		}
	}
	m.sound(card, trig)
}

// ForceOutput lowers the previously forced lines and forces val, shifted to
// the first continuous line and clipped to the continuous mask.
func (m *Machine) ForceOutput(val uint32, out *OutputBatch) {
	if m.contMask.Empty() {
		return
	}
	if !m.forcedOutput.Empty() {
		m.write(out, m.forcedOutput, 0)
	}
	m.forcedOutput = primitives.Bits(val<<uint(m.contMask.Lowest())) & m.contMask
}

// ReadyForTrial enters row 0 at once when the machine sits in the
// ready-for-trial state, and otherwise raises the flag so the next entry of
// that state is redirected.
func (m *Machine) ReadyForTrial(out *OutputBatch) {
	rft := m.Active().ReadyForTrialState
	if rft > 0 && m.current == rft {
		m.readyForTrial = false
		_ = m.gotoState(0, primitives.EventTimeout, out)
		return
	}
	m.readyForTrial = true
}

// ForceState jumps to state as a timeout-triggered transition.
func (m *Machine) ForceState(state int, out *OutputBatch) error {
	return m.gotoState(state, primitives.EventTimeout, out)
}

// StartAcquisition selects the analog channels to publish each cycle,
// limited to the first numChans channels, and returns the accepted set.
func (m *Machine) StartAcquisition(mask primitives.Bits, numChans int) primitives.Bits {
	m.acquisition = mask & primitives.RangeMask(0, numChans-1)
	return m.acquisition
}

// StopAcquisition clears the acquisition set.
func (m *Machine) StopAcquisition() { m.acquisition = 0 }

// InstallAnalogWave takes ownership of w, stopping whatever played in slot
// id. A nil w leaves the slot empty.
func (m *Machine) InstallAnalogWave(id int, w *AnalogWave) {
	m.aowaves.Stop(id, m.analogWrite)
	m.aowaves.Install(id, w)
}

// AnalogWaveSamples returns the samples currently held by all analog slots.
func (m *Machine) AnalogWaveSamples() int { return m.aowaves.Samples() }

// BeginReset lowers every line the machine drives, stops its waves and
// freezes it while the helper builds fresh buffers.
func (m *Machine) BeginReset(out *OutputBatch) {
	m.StopAllWaves(out)
	if lines := m.contMask | m.trigMask | m.forcedOutput; !lines.Empty() {
		m.write(out, lines, 0)
	}
	m.trigLines = 0
	m.forcedOutput = 0
	m.valid = false
	m.swap = SwapNone
}

// FinishReset installs the helper's fresh history and returns the machine to
// its initial paused, invalid state holding the empty definition. Runtime
// restarts at 0.
func (m *Machine) FinishReset(h *History) {
	if h != nil {
		m.history = h
	}
	m.aowaves.ReleaseAll(m.analogWrite)
	m.bufs[0].Def, m.bufs[1].Def = m.empty, m.empty
	m.active = 0
	m.initRunState()
	m.acquisition = 0
	m.reconfigure()
}

// Status summarizes the machine. It reads run state unsynchronized and is
// only consistent while the loop is stopped.
func (m *Machine) Status() MachineStatus {
	def := m.Active()
	return MachineStatus{
		ID:            m.id,
		Definition:    def.Name,
		Version:       def.Version,
		Rows:          def.NumRows(),
		State:         m.current,
		Previous:      m.previous,
		Valid:         m.valid,
		Paused:        m.paused,
		ReadyForTrial: m.readyForTrial,
		SwapPending:   m.swap == SwapPending,
		Transitions:   m.history.Count(),
		Runtime:       m.now,
		Waves:         m.waves.Active(),
		AnalogWaves:   m.aowaves.Active(),
		Acquisition:   m.acquisition,
	}
}

func (m *Machine) analogWrite(line int, sample uint16) {
	if m.opts.analog == nil || line < 0 {
		return
	}
	if err := m.opts.analog.WriteAnalog(line, sample); err != nil {
		m.opts.logger.Warn("analog write failed",
			zap.Int("machine", m.id), zap.Int("line", line), zap.Error(err))
	}
}

func (m *Machine) internal(err error, fields ...zap.Field) {
	fields = append(fields, zap.Int("machine", m.id), zap.Bool("internal", true), zap.Error(err))
	m.opts.logger.Error("internal error", fields...)
	m.opts.sink.InternalError(m.id, err)
}
