package primitives

import "fmt"

// InputType selects how routed input channels are sampled.
type InputType string

const (
	InputDigital InputType = "digital"
	InputAnalog  InputType = "analog"
)

// Routing maps hardware channels and waves to event ids, and output columns
// to sinks.
type Routing struct {
	InputType   InputType `json:"input_type" yaml:"input_type"`
	FirstInChan int       `json:"first_in_chan" yaml:"first_in_chan"`
	NumInChans  int       `json:"num_in_chans" yaml:"num_in_chans"`
	// InputEvents[2*(ch-FirstInChan)] is the edge-up event id of ch and
	// InputEvents[2*(ch-FirstInChan)+1] its edge-down event id; -1 is unrouted.
	InputEvents  []int        `json:"input_events" yaml:"input_events"`
	NumEventCols int          `json:"num_event_cols" yaml:"num_event_cols"`
	Outputs      []OutputSpec `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// WaveInput[2*w] and WaveInput[2*w+1] are the edge-up and edge-down event
	// ids surfaced by wave w.
	WaveInput []int `json:"wave_input,omitempty" yaml:"wave_input,omitempty"`
	// WaveOutput[w] is the digital line driven by wave w, or -1.
	WaveOutput []int `json:"wave_output,omitempty" yaml:"wave_output,omitempty"`
}

// Analog reports whether inputs are classified from analog samples.
func (r *Routing) Analog() bool { return r.InputType == InputAnalog }

// InputEvent returns the event id routed to an edge on ch, or -1.
func (r *Routing) InputEvent(ch int, up bool) int {
	i := ch - r.FirstInChan
	if i < 0 || i >= r.NumInChans {
		return NoRoute
	}
	i *= 2
	if !up {
		i++
	}
	if i >= len(r.InputEvents) {
		return NoRoute
	}
	return r.InputEvents[i]
}

// InputChannels returns the channels that have at least one routed edge.
func (r *Routing) InputChannels() Bits {
	var b Bits
	for i := 0; i < r.NumInChans; i++ {
		ch := r.FirstInChan + i
		if r.InputEvent(ch, true) >= 0 || r.InputEvent(ch, false) >= 0 {
			b.Set(ch)
		}
	}
	return b
}

// WaveEvent returns the event id surfaced by an edge of wave w, or -1.
func (r *Routing) WaveEvent(w int, up bool) int {
	i := 2 * w
	if !up {
		i++
	}
	if w < 0 || i >= len(r.WaveInput) {
		return NoRoute
	}
	return r.WaveInput[i]
}

// WaveLine returns the digital line driven by wave w, or -1.
func (r *Routing) WaveLine(w int) int {
	if w < 0 || w >= len(r.WaveOutput) {
		return NoRoute
	}
	return r.WaveOutput[w]
}

// ContinuousMask is the union of every dout column's lines.
func (r *Routing) ContinuousMask() Bits { return r.linesOf(OutputDigital) }

// TriggerMask is the union of every trig column's lines.
func (r *Routing) TriggerMask() Bits { return r.linesOf(OutputTrigger) }

// WaveLines is the set of lines driven by digital waves.
func (r *Routing) WaveLines() Bits {
	var b Bits
	for _, l := range r.WaveOutput {
		b.Set(l)
	}
	return b
}

func (r *Routing) linesOf(k OutputKind) Bits {
	var b Bits
	for i := range r.Outputs {
		if r.Outputs[i].Kind == k {
			b |= r.Outputs[i].Lines()
		}
	}
	return b
}

// Definition is the complete state table, routing and wave declarations of
// one machine.
type Definition struct {
	Name    string     `json:"name,omitempty" yaml:"name,omitempty"`
	Version string     `json:"version,omitempty" yaml:"version,omitempty"`
	Rows    []Row      `json:"rows" yaml:"rows"`
	Routing Routing    `json:"routing" yaml:"routing"`
	Waves   []WaveSpec `json:"waves,omitempty" yaml:"waves,omitempty"`
	// ReadyForTrialState is redirected to row 0 once the ready-for-trial flag
	// is raised. 0 disables the gate.
	ReadyForTrialState int `json:"ready_for_trial_state,omitempty" yaml:"ready_for_trial_state,omitempty"`
	// DeferSwap holds a replacement of this machine's definition until it
	// next enters row 0.
	DeferSwap bool `json:"defer_swap,omitempty" yaml:"defer_swap,omitempty"`
}

// EmptyDefinition returns the definition every machine holds before one is
// uploaded: a single idle row and no routing.
func EmptyDefinition() *Definition {
	return &Definition{
		Name:    "empty",
		Rows:    []Row{NewRow(0, 0, 0)},
		Routing: Routing{InputType: InputDigital},
	}
}

// NumRows returns the number of states.
func (d *Definition) NumRows() int { return len(d.Rows) }

// Size returns the table dimensions: rows, and columns counted as event
// columns plus timeout state, timeout duration and output columns.
func (d *Definition) Size() (rows, cols int) {
	return len(d.Rows), d.Routing.NumEventCols + 2 + len(d.Routing.Outputs)
}

// Wave returns the declaration of wave id.
func (d *Definition) Wave(id int) (*WaveSpec, bool) {
	for i := range d.Waves {
		if d.Waves[i].ID == id {
			return &d.Waves[i], true
		}
	}
	return nil, false
}

// Validate checks structural consistency: every next state and timeout state
// is a row of the table, every routed event id is in [-1, NumEventCols], and
// every declared count fits the fixed bounds.
func (d *Definition) Validate() error {
	if len(d.Rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidDefinition)
	}
	r := &d.Routing
	switch r.InputType {
	case InputDigital, InputAnalog, "":
	default:
		return fmt.Errorf("%w: input type %q", ErrInvalidDefinition, r.InputType)
	}
	if r.NumEventCols < 0 || r.NumEventCols > MaxEventCols {
		return fmt.Errorf("%w: %d event columns (max %d)", ErrEventRange, r.NumEventCols, MaxEventCols)
	}
	if len(r.Outputs) > MaxOutputCols {
		return fmt.Errorf("%w: %d output columns (max %d)", ErrInvalidDefinition, len(r.Outputs), MaxOutputCols)
	}
	for i, row := range d.Rows {
		if err := row.Validate(len(d.Rows), r.NumEventCols, len(r.Outputs)); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if r.FirstInChan < 0 || r.NumInChans < 0 || r.FirstInChan+r.NumInChans > MaxChannels {
		return fmt.Errorf("%w: input channels %d+%d", ErrChannelRange, r.FirstInChan, r.NumInChans)
	}
	if len(r.InputEvents) != 2*r.NumInChans {
		return fmt.Errorf("%w: %d input routes for %d channels", ErrInvalidDefinition, len(r.InputEvents), r.NumInChans)
	}
	if err := checkEventIDs("input route", r.InputEvents, r.NumEventCols); err != nil {
		return err
	}
	if len(r.WaveInput) > 2*MaxWaves || len(r.WaveOutput) > MaxWaves {
		return fmt.Errorf("%w: wave routing exceeds %d waves", ErrWaveRange, MaxWaves)
	}
	if err := checkEventIDs("wave route", r.WaveInput, r.NumEventCols); err != nil {
		return err
	}
	for w, line := range r.WaveOutput {
		if line < NoRoute || line >= MaxChannels {
			return fmt.Errorf("%w: wave %d drives line %d", ErrChannelRange, w, line)
		}
	}
	for i := range r.Outputs {
		if err := r.Outputs[i].Validate(MaxChannels); err != nil {
			return fmt.Errorf("output column %d: %w", i, err)
		}
	}
	seen := Bits(0)
	for i := range d.Waves {
		if err := d.Waves[i].Validate(); err != nil {
			return err
		}
		if seen.Has(d.Waves[i].ID) {
			return fmt.Errorf("%w: wave %d declared twice", ErrInvalidDefinition, d.Waves[i].ID)
		}
		seen.Set(d.Waves[i].ID)
	}
	return nil
}

// ValidateAgainst runs Validate and then checks the channel ranges against
// the hardware actually present.
func (d *Definition) ValidateAgainst(l Limits) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r := &d.Routing
	avail := l.DigitalChannels
	if r.Analog() {
		avail = l.AnalogInChannels
	}
	if r.NumInChans > 0 && r.FirstInChan+r.NumInChans > avail {
		return fmt.Errorf("%w: %s inputs %d-%d (have %d)", ErrChannelRange, r.InputType,
			r.FirstInChan, r.FirstInChan+r.NumInChans-1, avail)
	}
	for i := range r.Outputs {
		if err := r.Outputs[i].Validate(l.DigitalChannels); err != nil {
			return fmt.Errorf("output column %d: %w", i, err)
		}
	}
	for w, line := range r.WaveOutput {
		if line >= l.DigitalChannels {
			return fmt.Errorf("%w: wave %d drives line %d (have %d)", ErrChannelRange, w, line, l.DigitalChannels)
		}
	}
	if !r.Analog() {
		outs := r.ContinuousMask() | r.TriggerMask() | r.WaveLines()
		if clash := r.InputChannels() & outs; !clash.Empty() {
			return fmt.Errorf("%w: line %d used as input and output", ErrChannelRange, clash.Lowest())
		}
	}
	return nil
}

// Warnings lists conditions that are accepted but probably unintended.
func (d *Definition) Warnings() []string {
	var w []string
	if d.ReadyForTrialState < 0 || d.ReadyForTrialState >= len(d.Rows) {
		w = append(w, fmt.Sprintf("ready-for-trial state %d is not a row, the gate never fires", d.ReadyForTrialState))
	}
	return w
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Rows = make([]Row, len(d.Rows))
	for i := range d.Rows {
		c.Rows[i] = d.Rows[i].clone()
	}
	c.Routing.InputEvents = append([]int(nil), d.Routing.InputEvents...)
	c.Routing.Outputs = append([]OutputSpec(nil), d.Routing.Outputs...)
	c.Routing.WaveInput = append([]int(nil), d.Routing.WaveInput...)
	c.Routing.WaveOutput = append([]int(nil), d.Routing.WaveOutput...)
	c.Waves = append([]WaveSpec(nil), d.Waves...)
	return &c
}

func checkEventIDs(what string, ids []int, numEventCols int) error {
	for i, id := range ids {
		if id < NoRoute || id > numEventCols {
			return fmt.Errorf("%w: %s %d maps to event %d (columns=%d)", ErrEventRange, what, i, id, numEventCols)
		}
	}
	return nil
}
