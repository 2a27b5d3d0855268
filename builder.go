package rtfsm

import (
	"errors"
	"fmt"
	"time"

	"github.com/comalice/rtfsm/internal/primitives"
)

// Builder assembles a Definition from named states, events and output
// columns. Names are resolved to table indices on Build: the initial state
// is row 0 and other states follow in order of first reference; events and
// outputs are numbered in declaration order.
type Builder struct {
	name string

	stateIDs map[string]int
	states   []string
	defined  map[string]*StateBuilder

	eventIDs map[string]int
	events   []string

	outputIDs map[string]int
	outputs   []primitives.OutputSpec

	analog bool
	inputs map[int][2]string // channel -> up, down event names

	waves []waveDecl

	readyForTrial string
	deferSwap     bool

	errs []error
}

type waveDecl struct {
	spec     primitives.WaveSpec
	up, down string
	line     int
}

// StateBuilder configures one row.
type StateBuilder struct {
	b       *Builder
	name    string
	on      map[string]string
	timeout time.Duration
	after   string
	set     map[string]int
}

// NewBuilder creates a builder whose initial state is initial.
func NewBuilder(name, initial string) *Builder {
	b := &Builder{
		name:      name,
		stateIDs:  make(map[string]int),
		defined:   make(map[string]*StateBuilder),
		eventIDs:  make(map[string]int),
		outputIDs: make(map[string]int),
		inputs:    make(map[int][2]string),
	}
	b.assignState(initial)
	return b
}

func (b *Builder) assignState(name string) int {
	if id, ok := b.stateIDs[name]; ok {
		return id
	}
	id := len(b.states)
	b.stateIDs[name] = id
	b.states = append(b.states, name)
	return id
}

// Event declares named input events. Redeclaring a name is a no-op.
func (b *Builder) Event(names ...string) *Builder {
	for _, n := range names {
		if _, ok := b.eventIDs[n]; ok {
			continue
		}
		b.eventIDs[n] = len(b.events)
		b.events = append(b.events, n)
	}
	return b
}

// Input routes the edges of channel ch to events up and down, declaring them
// as needed. An empty name leaves that edge unrouted.
func (b *Builder) Input(ch int, up, down string) *Builder {
	if ch < 0 || ch >= primitives.MaxChannels {
		b.errs = append(b.errs, fmt.Errorf("input channel %d: %w", ch, primitives.ErrChannelRange))
		return b
	}
	for _, n := range []string{up, down} {
		if n != "" {
			b.Event(n)
		}
	}
	b.inputs[ch] = [2]string{up, down}
	return b
}

// Analog classifies the input channels from analog samples instead of
// digital lines.
func (b *Builder) Analog() *Builder {
	b.analog = true
	return b
}

// Output declares a named output column.
func (b *Builder) Output(name string, spec primitives.OutputSpec) *Builder {
	if _, ok := b.outputIDs[name]; ok {
		b.errs = append(b.errs, fmt.Errorf("output %q declared twice", name))
		return b
	}
	b.outputIDs[name] = len(b.outputs)
	b.outputs = append(b.outputs, spec)
	return b
}

// Wave declares digital wave spec. Its edges surface as events up and down
// (empty for none) and it drives line, or no line when line is negative.
func (b *Builder) Wave(spec primitives.WaveSpec, up, down string, line int) *Builder {
	for _, n := range []string{up, down} {
		if n != "" {
			b.Event(n)
		}
	}
	b.waves = append(b.waves, waveDecl{spec: spec, up: up, down: down, line: line})
	return b
}

// ReadyForTrial names the state redirected to the initial state once the
// control program signals ready-for-trial.
func (b *Builder) ReadyForTrial(state string) *Builder {
	b.readyForTrial = state
	b.assignState(state)
	return b
}

// DeferSwap makes a replacement wait for the next entry of the initial
// state.
func (b *Builder) DeferSwap() *Builder {
	b.deferSwap = true
	return b
}

// State creates or retrieves the row named name.
func (b *Builder) State(name string) *StateBuilder {
	if sb, ok := b.defined[name]; ok {
		return sb
	}
	b.assignState(name)
	sb := &StateBuilder{b: b, name: name, on: make(map[string]string), set: make(map[string]int)}
	b.defined[name] = sb
	return sb
}

// On jumps to target when event occurs.
func (s *StateBuilder) On(event, target string) *StateBuilder {
	s.on[event] = target
	s.b.assignState(target)
	return s
}

// After jumps to target once the state has been active for d.
func (s *StateBuilder) After(d time.Duration, target string) *StateBuilder {
	s.timeout = d
	s.after = target
	s.b.assignState(target)
	return s
}

// Set gives output column name the value val while entering this state.
func (s *StateBuilder) Set(output string, val int) *StateBuilder {
	s.set[output] = val
	return s
}

// State returns to the parent builder for chaining.
func (s *StateBuilder) State(name string) *StateBuilder { return s.b.State(name) }

// Build resolves names and returns the validated definition.
func (b *Builder) Build() (*primitives.Definition, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	numEvents, numOutputs := len(b.events), len(b.outputs)
	def := &primitives.Definition{
		Name:      b.name,
		Rows:      make([]primitives.Row, len(b.states)),
		DeferSwap: b.deferSwap,
	}
	for id, name := range b.states {
		row := primitives.NewRow(id, numEvents, numOutputs)
		sb := b.defined[name]
		for ev, target := range sb.on {
			row = row.On(b.eventIDs[ev], b.stateIDs[target])
		}
		if sb.after != "" {
			row = row.After(sb.timeout.Microseconds(), b.stateIDs[sb.after])
		}
		for out, val := range sb.set {
			row = row.Output(b.outputIDs[out], val)
		}
		def.Rows[id] = row
	}
	if b.readyForTrial != "" {
		def.ReadyForTrialState = b.stateIDs[b.readyForTrial]
	}
	def.Routing = b.routing()
	for _, w := range b.waves {
		def.Waves = append(def.Waves, w.spec)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (b *Builder) routing() primitives.Routing {
	r := primitives.Routing{
		InputType:    primitives.InputDigital,
		NumEventCols: len(b.events),
		Outputs:      append([]primitives.OutputSpec(nil), b.outputs...),
	}
	if b.analog {
		r.InputType = primitives.InputAnalog
	}
	if len(b.inputs) > 0 {
		first, last := primitives.MaxChannels, -1
		for ch := range b.inputs {
			first, last = min(first, ch), max(last, ch)
		}
		r.FirstInChan, r.NumInChans = first, last-first+1
		r.InputEvents = make([]int, 2*r.NumInChans)
		for i := range r.InputEvents {
			r.InputEvents[i] = primitives.NoRoute
		}
		for ch, names := range b.inputs {
			i := 2 * (ch - first)
			r.InputEvents[i], r.InputEvents[i+1] = b.eventID(names[0]), b.eventID(names[1])
		}
	}
	for _, w := range b.waves {
		id := w.spec.ID
		for len(r.WaveOutput) <= id {
			r.WaveOutput = append(r.WaveOutput, primitives.NoRoute)
			r.WaveInput = append(r.WaveInput, primitives.NoRoute, primitives.NoRoute)
		}
		r.WaveOutput[id] = w.line
		if w.line < 0 {
			r.WaveOutput[id] = primitives.NoRoute
		}
		r.WaveInput[2*id], r.WaveInput[2*id+1] = b.eventID(w.up), b.eventID(w.down)
	}
	return r
}

func (b *Builder) eventID(name string) int {
	if name == "" {
		return primitives.NoRoute
	}
	return b.eventIDs[name]
}

func (b *Builder) validate() error {
	errs := append([]error(nil), b.errs...)
	for _, name := range b.states {
		sb, ok := b.defined[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: state %q referenced but not defined", primitives.ErrInvalidDefinition, name))
			continue
		}
		for ev := range sb.on {
			if _, ok := b.eventIDs[ev]; !ok {
				errs = append(errs, fmt.Errorf("%w: state %q: unknown event %q", primitives.ErrEventRange, name, ev))
			}
		}
		for out := range sb.set {
			if _, ok := b.outputIDs[out]; !ok {
				errs = append(errs, fmt.Errorf("%w: state %q: unknown output %q", primitives.ErrInvalidDefinition, name, out))
			}
		}
		if sb.after != "" && sb.timeout <= 0 {
			errs = append(errs, fmt.Errorf("%w: state %q: timeout must be positive", primitives.ErrInvalidDefinition, name))
		}
	}
	for _, w := range b.waves {
		if w.spec.ID < 0 || w.spec.ID >= primitives.MaxWaves {
			errs = append(errs, fmt.Errorf("%w: wave %d", primitives.ErrWaveRange, w.spec.ID))
		}
	}
	return errors.Join(errs...)
}

// StateID returns the row index assigned to name, or -1.
func (b *Builder) StateID(name string) int {
	if id, ok := b.stateIDs[name]; ok {
		return id
	}
	return -1
}

// EventID returns the event column assigned to name, or -1.
func (b *Builder) EventID(name string) int {
	if id, ok := b.eventIDs[name]; ok {
		return id
	}
	return -1
}

// StateName returns the name of row id.
func (b *Builder) StateName(id int) string {
	if id < 0 || id >= len(b.states) {
		return fmt.Sprintf("%d", id)
	}
	return b.states[id]
}
