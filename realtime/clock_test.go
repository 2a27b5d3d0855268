package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(ms(5))
	ctx := context.Background()

	require.NoError(t, c.SleepUntil(ctx, ms(3)))
	assert.Equal(t, ms(3), c.Now())
	require.NoError(t, c.SleepUntil(ctx, ms(1)), "sleeping into the past returns at once")
	assert.Equal(t, ms(3), c.Now())

	c.Set(ms(2))
	assert.Equal(t, ms(3), c.Now(), "time never goes backwards")
	c.Advance(ms(1))
	assert.Equal(t, ms(4), c.Now())

	assert.ErrorIs(t, c.SleepUntil(ctx, ms(6)), ErrClockStopped)
}

func TestManualClockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewManualClock(0).SleepUntil(ctx, ms(1)), context.Canceled)
}

func TestWallClock(t *testing.T) {
	c := NewWallClock()
	start := c.Now()
	require.NoError(t, c.SleepUntil(context.Background(), start+2*time.Millisecond))
	assert.GreaterOrEqual(t, c.Now(), start+2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SleepUntil(ctx, c.Now()+time.Hour), context.Canceled)
}
