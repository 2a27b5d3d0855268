package extensibility

import (
	"context"
	"errors"
	"sync"
)

// ErrOverflow is the fault a SimStream reports after Overflow.
var ErrOverflow = errors.New("analog acquisition buffer overflow")

// SimStream is an AnalogStream fed by hand. Feed publishes a scan, Overflow
// raises a fault that stays until the stream is restarted.
type SimStream struct {
	mu       sync.Mutex
	latest   []uint16
	fresh    bool
	fault    error
	stopped  bool
	restarts int
	failNext error
}

// NewSimStream creates a stream of the given channel count.
func NewSimStream(channels int) *SimStream {
	return &SimStream{latest: make([]uint16, channels)}
}

// Feed publishes one scan.
func (s *SimStream) Feed(samples ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	copy(s.latest, samples)
	s.fresh = true
}

// Overflow stops acquisition and raises ErrOverflow.
func (s *SimStream) Overflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = ErrOverflow
	s.stopped = true
}

// FailNextRestart makes the next Restart return err.
func (s *SimStream) FailNextRestart(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Latest copies the newest unread scan into dst.
func (s *SimStream) Latest(dst []uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return false
	}
	copy(dst, s.latest)
	s.fresh = false
	return true
}

func (s *SimStream) TakeFault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fault
	s.fault = nil
	return err
}

func (s *SimStream) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.stopped = false
	s.restarts++
	return nil
}

// Restarts returns how many times the stream was restarted.
func (s *SimStream) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Running reports whether acquisition is active.
func (s *SimStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}
