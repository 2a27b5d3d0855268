package rtfsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/realtime"
)

func pokeDef(t *testing.T) *Definition {
	t.Helper()
	b := NewBuilder("poke", "wait").
		Input(0, "in", "").
		Output("led", DigitalOut(8, 8))
	b.State("wait").On("in", "lit")
	b.State("lit").Set("led", 1)
	def, err := b.Build()
	require.NoError(t, err)
	return def
}

// startSystem runs a wall-clock system on a simulated port for the test's
// lifetime.
func startSystem(t *testing.T) (*System, *extensibility.SimPort) {
	t.Helper()
	port := extensibility.NewSimPort()
	s, err := NewSystem(realtime.Config{Machines: 2}, port)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return s, port
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientLifecycle(t *testing.T) {
	s, port := startSystem(t)
	c := s.Client(0)
	ctx := testCtx(t)

	valid, err := c.Valid(ctx)
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, c.Start(ctx, pokeDef(t)))
	valid, err = c.Valid(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	paused, err := c.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	port.SetInput(0, true)
	select {
	case tr := <-c.TransitionStream():
		assert.Equal(t, 1, tr.State)
		assert.Equal(t, 0, tr.Event)
	case <-ctx.Done():
		t.Fatal("no transition")
	}
	require.Eventually(t, func() bool { return port.Outputs()&(1<<8) != 0 }, time.Second, time.Millisecond)

	state, err := c.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state)

	n, err := c.TransitionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	hist, err := c.Transitions(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	rows, cols, err := c.DefinitionSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1+2+1, cols)

	events, err := c.InputEventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, events)

	def, err := c.Definition(ctx)
	require.NoError(t, err)
	assert.Equal(t, "poke", def.Name)
	assert.NotEmpty(t, def.Version)

	aomax, err := c.AnalogOutputMax(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(4095), aomax)

	state, err = c.ForceState(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, state)

	rt, err := c.Runtime(ctx)
	require.NoError(t, err)
	assert.Positive(t, rt)

	require.NoError(t, c.Reset(ctx))
	valid, err = c.Valid(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	n, err = c.TransitionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClientRejectedDefinition(t *testing.T) {
	s, _ := startSystem(t)
	c := s.Client(1)
	ctx := testCtx(t)

	bad := pokeDef(t)
	bad.Rows[1].TimeoutState = 9
	err := c.Start(ctx, bad)
	assert.ErrorIs(t, err, primitives.ErrStateRange)

	valid, err := c.Valid(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	paused, err := c.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	assert.ErrorIs(t, c.ForceEvent(ctx, 5), primitives.ErrEventRange)
}

func TestClientAcquisitionAndWaves(t *testing.T) {
	s, port := startSystem(t)
	c := s.Client(0)
	ctx := testCtx(t)
	port.SetAnalog(0, 1234)

	info, err := c.StartAcquisition(ctx, 0b1)
	require.NoError(t, err)
	assert.Equal(t, Bits(1), info.Channels)
	select {
	case scan := <-c.Scans():
		assert.Equal(t, []uint16{1234}, scan.Samples)
	case <-ctx.Done():
		t.Fatal("no scan")
	}
	require.NoError(t, c.StopAcquisition(ctx))

	require.NoError(t, c.UploadWave(ctx, &AnalogWaveUpload{ID: 0, Line: 0, Samples: []uint16{1, 2, 3}}))
	assert.ErrorIs(t, c.UploadWave(ctx, &AnalogWaveUpload{ID: 0, Line: 7}), primitives.ErrChannelRange)
}

func TestClientSkipsStaleReplies(t *testing.T) {
	s, _ := startSystem(t)
	ctx := testCtx(t)
	require.NoError(t, s.Transport.Submit(ctx, 0, primitives.Command{Kind: primitives.CmdGetPause, Seq: 999}))

	paused, err := s.Client(0).Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestClientContext(t *testing.T) {
	s, _ := startSystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Client(0).Valid(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
