package extensibility

import (
	"sync"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/core"
)

// SoundEvent is one call received by a RecordingSoundTrigger.
type SoundEvent struct {
	Card    int
	Trigger int
	Stop    bool
}

// RecordingSoundTrigger keeps every trigger and untrigger call.
type RecordingSoundTrigger struct {
	mu     sync.Mutex
	events []SoundEvent
}

func (r *RecordingSoundTrigger) Trigger(card, trig int) {
	r.mu.Lock()
	r.events = append(r.events, SoundEvent{Card: card, Trigger: trig})
	r.mu.Unlock()
}

func (r *RecordingSoundTrigger) Untrigger(card, trig int) {
	r.mu.Lock()
	r.events = append(r.events, SoundEvent{Card: card, Trigger: trig, Stop: true})
	r.mu.Unlock()
}

// Events returns a copy of the recorded calls.
func (r *RecordingSoundTrigger) Events() []SoundEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SoundEvent(nil), r.events...)
}

// LoggingSoundTrigger wraps a SoundTrigger and logs each call at debug level.
// A nil inner trigger only logs.
type LoggingSoundTrigger struct {
	inner core.SoundTrigger
	log   *zap.Logger
}

// NewLoggingSoundTrigger creates a LoggingSoundTrigger around inner.
func NewLoggingSoundTrigger(inner core.SoundTrigger, log *zap.Logger) *LoggingSoundTrigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingSoundTrigger{inner: inner, log: log}
}

func (l *LoggingSoundTrigger) Trigger(card, trig int) {
	l.log.Debug("sound trigger", zap.Int("card", card), zap.Int("trigger", trig))
	if l.inner != nil {
		l.inner.Trigger(card, trig)
	}
}

func (l *LoggingSoundTrigger) Untrigger(card, trig int) {
	l.log.Debug("sound untrigger", zap.Int("card", card), zap.Int("trigger", trig))
	if l.inner != nil {
		l.inner.Untrigger(card, trig)
	}
}
