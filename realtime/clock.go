package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClockStopped is returned by SleepUntil when a manual clock has reached
// its limit. Run treats it as a normal stop.
var ErrClockStopped = errors.New("clock stopped")

// Clock is the loop's monotonic timebase. SleepUntil waits for an absolute
// instant so the schedule never drifts.
type Clock interface {
	Now() time.Duration
	SleepUntil(ctx context.Context, t time.Duration) error
}

// WallClock reads the monotonic wall clock relative to its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock starts a wall clock at 0.
func NewWallClock() *WallClock { return &WallClock{start: time.Now()} }

func (c *WallClock) Now() time.Duration { return time.Since(c.start) }

func (c *WallClock) SleepUntil(ctx context.Context, t time.Duration) error {
	d := t - c.Now()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ManualClock is simulated time: SleepUntil jumps straight to the requested
// instant. With a non-zero limit it stops once that instant is passed.
type ManualClock struct {
	mu    sync.Mutex
	now   time.Duration
	limit time.Duration
}

// NewManualClock creates a manual clock at 0. limit 0 means unlimited.
func NewManualClock(limit time.Duration) *ManualClock {
	return &ManualClock{limit: limit}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Time never goes backwards.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

func (c *ManualClock) SleepUntil(ctx context.Context, t time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && t > c.limit {
		return ErrClockStopped
	}
	if t > c.now {
		c.now = t
	}
	return nil
}
