package core

import "github.com/comalice/rtfsm/internal/primitives"

// AnalogWave is an uploaded sample table ready to be installed in a slot.
// Buffers are built by the helper context and only handed over whole.
type AnalogWave struct {
	Line    int
	Loop    bool
	Samples []uint16
	Events  []int8
}

// NewAnalogWave copies an upload into a wave, truncating to
// MaxAOSamples. Missing event tags read as -1.
func NewAnalogWave(u *primitives.AnalogWaveUpload) *AnalogWave {
	n := len(u.Samples)
	if n > primitives.MaxAOSamples {
		n = primitives.MaxAOSamples
	}
	w := &AnalogWave{
		Line:    u.Line,
		Loop:    u.Loop,
		Samples: make([]uint16, n),
		Events:  make([]int8, n),
	}
	copy(w.Samples, u.Samples)
	for i := range w.Events {
		w.Events[i] = -1
	}
	copy(w.Events, u.Events)
	return w
}

// Len returns the number of samples.
func (w *AnalogWave) Len() int { return len(w.Samples) }

type analogSlot struct {
	wave   *AnalogWave
	cursor int
}

// AnalogWaves holds the analog sample-streaming slots of one machine.
type AnalogWaves struct {
	slots   [primitives.MaxWaves]analogSlot
	active  primitives.Bits
	neutral uint16
}

// Active returns the set of playing slots.
func (a *AnalogWaves) Active() primitives.Bits { return a.active }

// Loaded reports whether slot id holds a non-empty wave.
func (a *AnalogWaves) Loaded(id int) bool {
	return id >= 0 && id < primitives.MaxWaves && a.slots[id].wave != nil && a.slots[id].wave.Len() > 0
}

// Cursor returns the next sample index of slot id.
func (a *AnalogWaves) Cursor(id int) int {
	if id < 0 || id >= primitives.MaxWaves {
		return 0
	}
	return a.slots[id].cursor
}

// SlotLen returns the number of samples loaded in slot id.
func (a *AnalogWaves) SlotLen(id int) int {
	if !a.Loaded(id) {
		return 0
	}
	return a.slots[id].wave.Len()
}

// Samples returns the total number of samples loaded in all slots.
func (a *AnalogWaves) Samples() int {
	n := 0
	for i := range a.slots {
		if w := a.slots[i].wave; w != nil {
			n += w.Len()
		}
	}
	return n
}

// Install places w in slot id, replacing what was there. The slot must be
// stopped first. A nil w empties the slot.
func (a *AnalogWaves) Install(id int, w *AnalogWave) {
	a.slots[id] = analogSlot{wave: w}
}

// Start begins playback of slot id from sample 0.
func (a *AnalogWaves) Start(id int) bool {
	if !a.Loaded(id) || a.active.Has(id) {
		return false
	}
	a.slots[id].cursor = 0
	a.active.Set(id)
	return true
}

// Stop ends playback of slot id and writes the neutral sample to its line.
func (a *AnalogWaves) Stop(id int, write func(line int, sample uint16)) bool {
	if id < 0 || id >= primitives.MaxWaves || !a.active.Has(id) {
		return false
	}
	a.active.Clear(id)
	a.slots[id].cursor = 0
	write(a.slots[id].wave.Line, a.neutral)
	return true
}

// ReleaseAll stops and empties every slot.
func (a *AnalogWaves) ReleaseAll(write func(line int, sample uint16)) {
	a.active.Each(func(id int) { a.Stop(id, write) })
	for i := range a.slots {
		a.slots[i] = analogSlot{}
	}
}

// Process emits one sample per playing slot. A looping slot wraps to 0 at
// the end; a non-looping slot that ran out writes the neutral sample and
// stops. event is called for every sample tagged with an event id.
func (a *AnalogWaves) Process(write func(line int, sample uint16), event func(id, ev int)) {
	playing := a.active
	for {
		id, ok := playing.PopLowest()
		if !ok {
			return
		}
		s := &a.slots[id]
		if s.wave.Loop && s.cursor >= s.wave.Len() {
			s.cursor = 0
		}
		if s.cursor >= s.wave.Len() {
			a.Stop(id, write)
			continue
		}
		write(s.wave.Line, s.wave.Samples[s.cursor])
		if ev := int(s.wave.Events[s.cursor]); ev >= 0 {
			event(id, ev)
		}
		s.cursor++
	}
}
