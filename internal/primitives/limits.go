package primitives

// Bounded table sizes. All masks are 32 bits wide, so channel, wave and event
// counts are capped accordingly.
const (
	MaxMachines   = 8
	MaxEventCols  = 31 // ids 0..30, plus the timeout pseudo-column
	MaxWaves      = 32
	MaxOutputCols = 32
	MaxChannels   = 32

	MaxAOSamples        = 1 << 20
	MaxReplyTransitions = 1024

	DefaultHistoryCapacity = 65536
)

// EventTimeout is the event id recorded for timeout-triggered transitions.
const EventTimeout = -1

// NoRoute marks an unrouted event or output line.
const NoRoute = -1

// Limits are the runtime hardware constraints a definition is checked against
// before it may become active.
type Limits struct {
	DigitalChannels   int
	AnalogInChannels  int
	AnalogOutChannels int
}
