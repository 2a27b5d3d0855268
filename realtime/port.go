package realtime

import (
	"context"

	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/primitives"
)

// HardwareIOPort is the raw IO capability the loop drives. Calls must
// complete in bounded time; they run on the real-time goroutine.
type HardwareIOPort interface {
	// ReadDigital returns one scan of all digital lines.
	ReadDigital() (uint32, error)
	// WriteDigital sets the lines in mask to the matching bits.
	WriteDigital(mask, bits uint32) error
	ReadAnalog(ch int) (uint16, error)
	WriteAnalog(ch int, sample uint16) error
}

// DirectionConfigurer is implemented by ports whose digital lines must be
// switched between input and output.
type DirectionConfigurer interface {
	ConfigureLine(line int, output bool) error
}

// AnalogStream delivers analog scans acquired asynchronously. Latest and
// TakeFault must not block; Restart is only called from a helper goroutine.
type AnalogStream interface {
	// Latest copies the most recent scan into dst and reports whether one
	// was available.
	Latest(dst []uint16) bool
	// TakeFault returns and clears a pending overflow or acquisition error.
	TakeFault() error
	Restart(ctx context.Context) error
}

// SoundTrigger receives the sound output columns.
type SoundTrigger = core.SoundTrigger

// ExternalClock stamps transitions with a second timebase.
type ExternalClock interface {
	Now() int64
}

// Transport is the loop's side of the per-machine message queues. Every
// method is non-blocking; a false return means the message was dropped.
type Transport interface {
	PollCommand(machine int) (primitives.Command, bool)
	Reply(machine int, r primitives.Reply) bool
	Transition(machine int, t primitives.StateTransition) bool
	Notify(machine int, n primitives.Notification) bool
	Scan(machine int, s primitives.DAQScan) bool
}
