package primitives

import "time"

// CommandKind identifies a control-program request.
type CommandKind int

const (
	CmdReset CommandKind = iota + 1
	CmdGetTransitionCount
	CmdGetTransitions
	CmdPauseToggle
	CmdGetPause
	CmdInvalidate
	CmdGetValid
	CmdReplaceDefinition
	CmdGetDefinition
	CmdGetDefinitionSize
	CmdGetInputEventCount
	CmdForceEvent
	CmdForceTimeout
	CmdForceSound
	CmdForceOutput
	CmdGetRuntime
	CmdReadyForTrial
	CmdGetCurrentState
	CmdForceState
	CmdStartAcquisition
	CmdStopAcquisition
	CmdGetAnalogOutputMax
	CmdUploadWave
)

var commandNames = map[CommandKind]string{
	CmdReset:              "reset",
	CmdGetTransitionCount: "get_transition_count",
	CmdGetTransitions:     "get_transitions",
	CmdPauseToggle:        "pause_toggle",
	CmdGetPause:           "get_pause",
	CmdInvalidate:         "invalidate",
	CmdGetValid:           "get_valid",
	CmdReplaceDefinition:  "replace_definition",
	CmdGetDefinition:      "get_definition",
	CmdGetDefinitionSize:  "get_definition_size",
	CmdGetInputEventCount: "get_input_event_count",
	CmdForceEvent:         "force_event",
	CmdForceTimeout:       "force_timeout",
	CmdForceSound:         "force_sound",
	CmdForceOutput:        "force_output",
	CmdGetRuntime:         "get_runtime",
	CmdReadyForTrial:      "ready_for_trial",
	CmdGetCurrentState:    "get_current_state",
	CmdForceState:         "force_state",
	CmdStartAcquisition:   "start_acquisition",
	CmdStopAcquisition:    "stop_acquisition",
	CmdGetAnalogOutputMax: "get_analog_output_max",
	CmdUploadWave:         "upload_wave",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return "unknown"
}

// Slow reports whether the command needs the helper context: it allocates,
// copies a whole definition or clears buffers.
func (k CommandKind) Slow() bool {
	switch k {
	case CmdReset, CmdReplaceDefinition, CmdGetDefinition, CmdUploadWave:
		return true
	}
	return false
}

// Command is a tagged request; only the fields used by Kind are read.
type Command struct {
	Kind       CommandKind
	Seq        uint64
	From       int // GetTransitions
	Count      int // GetTransitions
	Event      int // ForceEvent
	State      int // ForceState
	Mask       uint32
	Sound      int // ForceSound
	Definition *Definition
	Wave       *AnalogWaveUpload
}

// AcquisitionInfo answers StartAcquisition.
type AcquisitionInfo struct {
	Channels  Bits    `json:"channels" yaml:"channels"`
	RangeMinV float64 `json:"range_min_v" yaml:"range_min_v"`
	RangeMaxV float64 `json:"range_max_v" yaml:"range_max_v"`
	MaxData   uint16  `json:"max_data" yaml:"max_data"`
}

// Reply answers the Command with the same Seq. Err carries rejected input.
type Reply struct {
	Kind        CommandKind
	Seq         uint64
	Err         error
	Flag        bool
	Count       int
	State       int
	Rows        int
	Cols        int
	Transitions []StateTransition
	Definition  *Definition
	Runtime     time.Duration
	Acquisition AcquisitionInfo
	AOMax       uint16
}
