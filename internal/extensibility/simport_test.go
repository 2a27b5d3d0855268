package extensibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/primitives"
)

func TestSimPortScript(t *testing.T) {
	var now time.Duration
	p := NewSimPort(
		WithTimeSource(func() time.Duration { return now }),
		WithScript(Pulse(1, 10*time.Millisecond, 5*time.Millisecond)),
	)

	bits, err := p.ReadDigital()
	require.NoError(t, err)
	assert.Zero(t, bits)

	now = 12 * time.Millisecond
	bits, _ = p.ReadDigital()
	assert.Equal(t, uint32(0b10), bits)
	assert.False(t, p.ScriptDone())

	now = 20 * time.Millisecond
	bits, _ = p.ReadDigital()
	assert.Zero(t, bits)
	assert.True(t, p.ScriptDone())
	assert.Equal(t, 3, p.Reads())
}

func TestSimPortWrites(t *testing.T) {
	p := NewSimPort(WithChannels(16, 2, 1))
	require.NoError(t, p.WriteDigital(0b1100, 0b0100))
	require.NoError(t, p.WriteDigital(0b0100, 0))
	assert.Equal(t, uint32(0), p.Outputs())
	assert.Len(t, p.Writes(), 2)

	assert.ErrorIs(t, p.WriteDigital(1<<20, 1<<20), primitives.ErrChannelRange)

	require.NoError(t, p.WriteAnalog(0, 2048))
	assert.Equal(t, uint16(2048), p.AnalogOut(0))
	assert.ErrorIs(t, p.WriteAnalog(1, 0), primitives.ErrChannelRange)
	assert.Len(t, p.AnalogWrites(), 1)

	p.SetAnalog(1, 4000)
	s, err := p.ReadAnalog(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(4000), s)
	_, err = p.ReadAnalog(2)
	assert.ErrorIs(t, err, primitives.ErrChannelRange)
}

func TestSimPortDirectionsAndFaults(t *testing.T) {
	p := NewSimPort()
	require.NoError(t, p.ConfigureLine(8, true))
	require.NoError(t, p.ConfigureLine(9, true))
	require.NoError(t, p.ConfigureLine(9, false))
	assert.Equal(t, uint32(1<<8), p.OutputLines())
	assert.ErrorIs(t, p.ConfigureLine(40, true), primitives.ErrChannelRange)

	boom := errors.New("boom")
	p.SetInput(0, true)
	p.FailNextRead(boom)
	_, err := p.ReadDigital()
	assert.ErrorIs(t, err, boom)
	bits, err := p.ReadDigital()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), bits)
}

func TestSimStream(t *testing.T) {
	s := NewSimStream(2)
	dst := make([]uint16, 2)
	assert.False(t, s.Latest(dst), "nothing fed yet")

	s.Feed(10, 20)
	require.True(t, s.Latest(dst))
	assert.Equal(t, []uint16{10, 20}, dst)
	assert.False(t, s.Latest(dst), "each scan is read once")

	s.Overflow()
	assert.False(t, s.Running())
	s.Feed(1, 2)
	assert.False(t, s.Latest(dst), "stopped stream drops scans")
	assert.ErrorIs(t, s.TakeFault(), ErrOverflow)
	assert.NoError(t, s.TakeFault())

	s.FailNextRestart(errors.New("busy"))
	assert.Error(t, s.Restart(context.Background()))
	require.NoError(t, s.Restart(context.Background()))
	assert.True(t, s.Running())
	assert.Equal(t, 1, s.Restarts())
}

func TestSoundTriggers(t *testing.T) {
	rec := &RecordingSoundTrigger{}
	l := NewLoggingSoundTrigger(rec, nil)
	l.Trigger(1, 3)
	l.Untrigger(1, 3)
	assert.Equal(t, []SoundEvent{{Card: 1, Trigger: 3}, {Card: 1, Trigger: 3, Stop: true}}, rec.Events())

	// Without an inner trigger the wrapper only logs.
	NewLoggingSoundTrigger(nil, nil).Trigger(0, 1)
}
