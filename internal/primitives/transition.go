package primitives

import "time"

// StateTransition records one entry into a state. Event is the dispatching
// event id, or EventTimeout.
type StateTransition struct {
	Previous int           `json:"previous" yaml:"previous"`
	State    int           `json:"state" yaml:"state"`
	TS       time.Duration `json:"ts" yaml:"ts"`
	ExtTS    int64         `json:"ext_ts,omitempty" yaml:"ext_ts,omitempty"`
	Event    int           `json:"event" yaml:"event"`
}

// Notification is an out-of-band message emitted by a notify output column.
type Notification struct {
	Column   int    `json:"column" yaml:"column"`
	Value    int    `json:"value" yaml:"value"`
	Protocol string `json:"protocol" yaml:"protocol"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Format   string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DAQScan is one acquisition scan: one sample per channel in Channels,
// ascending.
type DAQScan struct {
	TS       time.Duration `json:"ts" yaml:"ts"`
	Channels Bits          `json:"channels" yaml:"channels"`
	Samples  []uint16      `json:"samples" yaml:"samples"`
}
