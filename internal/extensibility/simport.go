package extensibility

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/comalice/rtfsm/internal/primitives"
)

// DigitalWrite records one masked write to the simulated port.
type DigitalWrite struct {
	At   time.Duration
	Mask uint32
	Bits uint32
}

// AnalogWrite records one analog output sample.
type AnalogWrite struct {
	At      time.Duration
	Channel int
	Sample  uint16
}

// PortOption configures a SimPort.
type PortOption func(*SimPort)

// WithTimeSource stamps writes and plays scripts against now, typically the
// loop clock's Now.
func WithTimeSource(now func() time.Duration) PortOption {
	return func(p *SimPort) { p.now = now }
}

// WithScript plays script on the digital inputs.
func WithScript(script InputScript) PortOption {
	return func(p *SimPort) {
		p.script = append(InputScript(nil), script...)
		sort.SliceStable(p.script, func(i, j int) bool { return p.script[i].At < p.script[j].At })
	}
}

// WithChannels sets how many digital and analog channels the port has.
func WithChannels(digital, analogIn, analogOut int) PortOption {
	return func(p *SimPort) {
		p.digitalChans, p.aiChans, p.aoChans = digital, analogIn, analogOut
	}
}

// SimPort is an in-memory HardwareIOPort. Inputs come from a script or from
// explicit Set calls; every write is recorded. It is safe to drive from a
// test goroutine while the loop runs.
type SimPort struct {
	mu sync.Mutex

	now                            func() time.Duration
	digitalChans, aiChans, aoChans int

	script InputScript
	played int

	inputs  uint32
	outputs uint32
	outDir  uint32
	analog  []uint16
	aout    []uint16

	writes  []DigitalWrite
	awrites []AnalogWrite
	readErr error
	reads   int
}

// NewSimPort creates a port with 32 digital lines, 8 analog inputs and 2
// analog outputs unless configured otherwise.
func NewSimPort(opts ...PortOption) *SimPort {
	p := &SimPort{
		now:          func() time.Duration { return 0 },
		digitalChans: 32,
		aiChans:      8,
		aoChans:      2,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.analog = make([]uint16, p.aiChans)
	p.aout = make([]uint16, p.aoChans)
	return p
}

// ReadDigital applies due script steps and returns the input lines.
func (p *SimPort) ReadDigital() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if err := p.readErr; err != nil {
		p.readErr = nil
		return 0, err
	}
	now := p.now()
	for p.played < len(p.script) && p.script[p.played].At <= now {
		st := p.script[p.played]
		p.setLocked(st.Line, st.High)
		p.played++
	}
	return p.inputs, nil
}

func (p *SimPort) WriteDigital(mask, bits uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	valid := uint32(primitives.RangeMask(0, p.digitalChans-1))
	if mask&^valid != 0 {
		return fmt.Errorf("write mask %#x: %w", mask, primitives.ErrChannelRange)
	}
	p.outputs = (p.outputs &^ mask) | (bits & mask)
	p.writes = append(p.writes, DigitalWrite{At: p.now(), Mask: mask, Bits: bits})
	return nil
}

func (p *SimPort) ReadAnalog(ch int) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch < 0 || ch >= len(p.analog) {
		return 0, fmt.Errorf("analog input %d: %w", ch, primitives.ErrChannelRange)
	}
	return p.analog[ch], nil
}

func (p *SimPort) WriteAnalog(ch int, sample uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch < 0 || ch >= len(p.aout) {
		return fmt.Errorf("analog output %d: %w", ch, primitives.ErrChannelRange)
	}
	p.aout[ch] = sample
	p.awrites = append(p.awrites, AnalogWrite{At: p.now(), Channel: ch, Sample: sample})
	return nil
}

// ConfigureLine records the direction of a digital line.
func (p *SimPort) ConfigureLine(line int, output bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line < 0 || line >= p.digitalChans {
		return fmt.Errorf("line %d: %w", line, primitives.ErrChannelRange)
	}
	if output {
		p.outDir |= 1 << uint(line)
	} else {
		p.outDir &^= 1 << uint(line)
	}
	return nil
}

// SetInput drives an input line directly.
func (p *SimPort) SetInput(line int, high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(line, high)
}

func (p *SimPort) setLocked(line int, high bool) {
	if high {
		p.inputs |= 1 << uint(line)
	} else {
		p.inputs &^= 1 << uint(line)
	}
}

// SetAnalog sets the value returned for analog input ch.
func (p *SimPort) SetAnalog(ch int, sample uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch >= 0 && ch < len(p.analog) {
		p.analog[ch] = sample
	}
}

// FailNextRead makes the next ReadDigital return err.
func (p *SimPort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Outputs returns the current state of the digital output lines.
func (p *SimPort) Outputs() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputs
}

// OutputLines returns the lines configured as outputs.
func (p *SimPort) OutputLines() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outDir
}

// AnalogOut returns the last sample written to analog output ch.
func (p *SimPort) AnalogOut(ch int) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch < 0 || ch >= len(p.aout) {
		return 0
	}
	return p.aout[ch]
}

// Writes returns a copy of the digital write log.
func (p *SimPort) Writes() []DigitalWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DigitalWrite(nil), p.writes...)
}

// AnalogWrites returns a copy of the analog write log.
func (p *SimPort) AnalogWrites() []AnalogWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]AnalogWrite(nil), p.awrites...)
}

// Reads returns how many digital scans were taken.
func (p *SimPort) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// ScriptDone reports whether every script step has been applied.
func (p *SimPort) ScriptDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played == len(p.script)
}
