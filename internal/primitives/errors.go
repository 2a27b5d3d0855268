package primitives

import "errors"

var (
	ErrInvalidDefinition = errors.New("invalid definition")
	ErrStateRange        = errors.New("state out of range")
	ErrEventRange        = errors.New("event id out of range")
	ErrWaveRange         = errors.New("wave id out of range")
	ErrChannelRange      = errors.New("channel out of range")
	ErrWaveBudget        = errors.New("wave buffer budget exhausted")
	ErrBusy              = errors.New("helper busy")
	ErrNotValid          = errors.New("machine has no valid definition")
	ErrUnknownCommand    = errors.New("unknown command")
)
