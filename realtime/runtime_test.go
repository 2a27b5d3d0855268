package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/internal/production"
)

func TestNewRequiresPortAndTransport(t *testing.T) {
	_, err := New(Config{}, nil, production.NewChannelTransport(1))
	assert.Error(t, err)
	_, err = New(Config{Machines: 99}, extensibility.NewSimPort(), production.NewChannelTransport(1))
	assert.Error(t, err)
	_, err = New(Config{AnalogMode: AnalogModeStream}, extensibility.NewSimPort(), production.NewChannelTransport(4))
	assert.Error(t, err, "stream mode needs a stream")
}

func TestMachinesStartPausedAndInvalid(t *testing.T) {
	r := newRig(t, Config{Machines: 2})
	for i := 0; i < 2; i++ {
		assert.False(t, r.send(i, primitives.Command{Kind: primitives.CmdGetValid}).Flag)
		assert.True(t, r.send(i, primitives.Command{Kind: primitives.CmdGetPause}).Flag)
	}
}

// A 2-state table with a 100 ms timeout run for 150 ms makes exactly one
// transition.
func TestSingleTimeoutOverTransport(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	start := r.rt.Machine(0).Runtime()

	r.cycles(150)

	got := r.tr.DrainTransitions(0)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Previous)
	assert.Equal(t, 1, got[0].State)
	assert.Equal(t, primitives.EventTimeout, got[0].Event)
	assert.Equal(t, start+ms(100), got[0].TS)

	assert.Equal(t, 1, r.send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count)
	assert.Equal(t, 1, r.send(0, primitives.Command{Kind: primitives.CmdGetCurrentState}).State)
	assert.NotZero(t, r.port.Outputs()&(1<<8), "row 1 drives line 8")
	assert.NotZero(t, r.port.OutputLines()&(1<<8))
}

func TestRejectedReplaceLeavesMachineInvalid(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())

	bad := timeoutDef()
	bad.Rows[0].TimeoutState = 5
	rep := r.send(0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: bad})
	assert.ErrorIs(t, rep.Err, primitives.ErrStateRange)
	assert.False(t, rep.Flag)

	assert.False(t, r.send(0, primitives.Command{Kind: primitives.CmdGetValid}).Flag)
	assert.True(t, r.send(0, primitives.Command{Kind: primitives.CmdGetPause}).Flag)
	size := r.send(0, primitives.Command{Kind: primitives.CmdGetDefinitionSize})
	assert.Zero(t, size.Rows, "no size for an invalid machine")
}

func TestReplaceWithoutDefinition(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	r.cycles(110)
	m := r.rt.Machine(0)
	require.Equal(t, 1, m.Current())
	require.NotZero(t, r.port.Outputs()&(1<<8))

	rep := r.send(0, primitives.Command{Kind: primitives.CmdReplaceDefinition})
	assert.ErrorIs(t, rep.Err, primitives.ErrInvalidDefinition)
	assert.False(t, rep.Flag)
	assert.False(t, m.Valid())
	assert.True(t, m.Paused())
	assert.Equal(t, 0, m.Current())
	assert.Equal(t, 1, m.Active().NumRows(), "back on the empty definition")
	assert.Zero(t, r.port.Outputs()&(1<<8), "line 8 lowered")
}

func TestReplaceChecksHardwareLimits(t *testing.T) {
	r := newRig(t, Config{DigitalChannels: 8})
	rep := r.send(0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: timeoutDef()})
	assert.ErrorIs(t, rep.Err, primitives.ErrChannelRange, "line 8 does not exist")
}

func TestDeferredSwapCommitsAtRowZero(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	r.cycles(110)
	require.Equal(t, 1, r.rt.Machine(0).Current())

	next := timeoutDef()
	next.Name = "three"
	next.Rows = append(next.Rows, primitives.NewRow(2, 1, 1))
	next.DeferSwap = true
	rep := r.send(0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: next})
	require.NoError(t, rep.Err)

	assert.Equal(t, 2, r.send(0, primitives.Command{Kind: primitives.CmdGetDefinitionSize}).Rows)
	assert.True(t, r.rt.Machine(0).Status().SwapPending)

	require.NoError(t, r.send(0, primitives.Command{Kind: primitives.CmdForceEvent, Event: 0}).Err)
	size := r.send(0, primitives.Command{Kind: primitives.CmdGetDefinitionSize})
	assert.Equal(t, 3, size.Rows)
	assert.Equal(t, 1+2+1, size.Cols)
	assert.Equal(t, 0, r.send(0, primitives.Command{Kind: primitives.CmdGetCurrentState}).State)
}

func TestGetDefinitionReturnsVersionedCopy(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	rep := r.send(0, primitives.Command{Kind: primitives.CmdGetDefinition})
	require.NotNil(t, rep.Definition)
	assert.Equal(t, "timeout", rep.Definition.Name)
	assert.Len(t, rep.Definition.Version, 16)
	assert.NotSame(t, r.rt.Machine(0).Active(), rep.Definition)
}

func TestResetClearsHistoryAndDefinition(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	r.cycles(120)
	require.Equal(t, 1, r.send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count)

	rep := r.send(0, primitives.Command{Kind: primitives.CmdReset})
	assert.NoError(t, rep.Err)
	assert.Zero(t, r.send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count)
	assert.False(t, r.send(0, primitives.Command{Kind: primitives.CmdGetValid}).Flag)
	assert.Zero(t, r.port.Outputs()&(1<<8), "reset lowers the machine's lines")
}

func TestFastCommands(t *testing.T) {
	r := newRig(t, Config{AOMaxData: 65535})
	r.load(0, timeoutDef())

	assert.Equal(t, 1, r.send(0, primitives.Command{Kind: primitives.CmdGetInputEventCount}).Count)
	assert.Equal(t, uint16(65535), r.send(0, primitives.Command{Kind: primitives.CmdGetAnalogOutputMax}).AOMax)
	assert.Positive(t, r.send(0, primitives.Command{Kind: primitives.CmdGetRuntime}).Runtime)

	rep := r.send(0, primitives.Command{Kind: primitives.CmdForceEvent, Event: 3})
	assert.ErrorIs(t, rep.Err, primitives.ErrEventRange)

	rep = r.send(0, primitives.Command{Kind: primitives.CmdForceState, State: 7})
	assert.ErrorIs(t, rep.Err, primitives.ErrStateRange)
	assert.Equal(t, -1, rep.State)

	rep = r.send(0, primitives.Command{Kind: primitives.CmdForceState, State: 1})
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.State)

	rep = r.send(0, primitives.Command{Kind: primitives.CmdForceTimeout})
	assert.NoError(t, rep.Err)
	r.send(0, primitives.Command{Kind: primitives.CmdInvalidate})
	assert.False(t, r.send(0, primitives.Command{Kind: primitives.CmdGetValid}).Flag)

	rep = r.send(0, primitives.Command{Kind: primitives.CommandKind(99)})
	assert.ErrorIs(t, rep.Err, primitives.ErrUnknownCommand)
}

func TestGetTransitionsWindow(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	for i := 0; i < 3; i++ {
		r.cycles(101)
		r.send(0, primitives.Command{Kind: primitives.CmdForceEvent, Event: 0})
	}
	count := r.send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count
	require.Equal(t, 6, count)

	rep := r.send(0, primitives.Command{Kind: primitives.CmdGetTransitions, From: 2, Count: 3})
	require.Len(t, rep.Transitions, 3)
	assert.Equal(t, 3, rep.Count)
	assert.Equal(t, 1, rep.Transitions[0].State)
	assert.Equal(t, 0, rep.Transitions[1].State)
}

func TestForceOutputHoldsLine(t *testing.T) {
	r := newRig(t, Config{AvoidRedundantWrites: true})
	r.load(0, timeoutDef())
	r.send(0, primitives.Command{Kind: primitives.CmdForceOutput, Mask: 1})
	r.cycles(20)
	assert.NotZero(t, r.port.Outputs()&(1<<8))
	assert.Positive(t, r.rt.Stats().SkippedWrites, "unchanged forced writes are skipped")

	r.send(0, primitives.Command{Kind: primitives.CmdForceOutput, Mask: 0})
	r.cycles(1)
	assert.Zero(t, r.port.Outputs()&(1<<8))
}

func TestAcquisitionScans(t *testing.T) {
	r := newRig(t, Config{AnalogInChannels: 4})
	r.port.SetAnalog(1, 77)

	rep := r.send(0, primitives.Command{Kind: primitives.CmdStartAcquisition, Mask: 0b110011})
	assert.Equal(t, primitives.Bits(0b11), rep.Acquisition.Channels, "clipped to present channels")
	assert.Equal(t, -10.0, rep.Acquisition.RangeMinV)
	assert.Equal(t, uint16(4095), rep.Acquisition.MaxData)

	r.cycles(3)
	var scans []primitives.DAQScan
	for len(r.tr.Scans(0)) > 0 {
		scans = append(scans, <-r.tr.Scans(0))
	}
	require.NotEmpty(t, scans)
	assert.Equal(t, []uint16{0, 77}, scans[len(scans)-1].Samples)

	r.send(0, primitives.Command{Kind: primitives.CmdStopAcquisition})
	for len(r.tr.Scans(0)) > 0 {
		<-r.tr.Scans(0)
	}
	r.cycles(3)
	assert.Empty(t, r.tr.Scans(0))
}

func TestUploadWaveBudget(t *testing.T) {
	r := newRig(t, Config{MaxWaveSamples: 4})
	upload := func(id, line, n int) primitives.Reply {
		return r.send(0, primitives.Command{Kind: primitives.CmdUploadWave, Wave: &primitives.AnalogWaveUpload{
			ID: id, Line: line, Samples: make([]uint16, n),
		}})
	}

	assert.True(t, upload(0, 0, 3).Flag)
	assert.ErrorIs(t, upload(1, 0, 3).Err, primitives.ErrWaveBudget)
	assert.False(t, r.rt.Machine(0).AnalogWaves().Loaded(1), "a refused upload leaves the slot empty")
	assert.True(t, upload(0, 1, 4).Flag, "replacing a slot frees its samples")
	assert.ErrorIs(t, upload(2, 5, 1).Err, primitives.ErrChannelRange)
	assert.ErrorIs(t, upload(40, 0, 1).Err, primitives.ErrWaveRange)
}

// A slow command blocks the machine's queue until its reply has been sent.
func TestSlowCommandHoldsQueue(t *testing.T) {
	r := newRig(t, Config{})
	ctx := context.Background()
	require.NoError(t, r.tr.Submit(ctx, 0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Seq: 1, Definition: timeoutDef()}))
	require.NoError(t, r.tr.Submit(ctx, 0, primitives.Command{Kind: primitives.CmdGetValid, Seq: 2}))

	r.cycles(1)
	assert.Empty(t, r.tr.Replies(0), "helper result is picked up next cycle")

	r.cycles(1)
	require.Len(t, r.tr.Replies(0), 2)
	first, second := <-r.tr.Replies(0), <-r.tr.Replies(0)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.True(t, second.Flag, "valid once the replace is final")
}

func TestHelperGoroutines(t *testing.T) {
	clock := NewManualClock(0)
	tr := production.NewChannelTransport(1)
	rt, err := New(Config{Machines: 1}, extensibility.NewSimPort(), tr, WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wait := rt.StartHelpers(ctx)
	defer func() {
		cancel()
		wait()
	}()

	require.NoError(t, tr.Submit(ctx, 0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Seq: 1, Definition: timeoutDef()}))
	var (
		rep primitives.Reply
		got bool
	)
	for deadline := time.Now().Add(time.Second); !got && time.Now().Before(deadline); {
		rt.Cycle()
		select {
		case rep = <-tr.Replies(0):
			got = true
		case <-time.After(time.Millisecond):
		}
	}
	require.True(t, got, "helper never finished")
	assert.NoError(t, rep.Err)
	assert.True(t, rt.Machine(0).Valid())
}

func TestTransitionDropsAreCounted(t *testing.T) {
	blink := &primitives.Definition{
		Name: "blink",
		Rows: []primitives.Row{
			primitives.NewRow(0, 0, 0).After(1000, 1),
			primitives.NewRow(1, 0, 0).After(1000, 0),
		},
	}
	r := newRigWith(t, Config{}, production.NewChannelTransport(1, production.WithTransitionDepth(2)))
	r.load(0, blink)
	r.cycles(10)

	assert.Len(t, r.tr.DrainTransitions(0), 2)
	assert.Positive(t, r.tr.Dropped(0))
	assert.Equal(t, r.tr.Dropped(0), r.rt.Stats().Dropped)
	assert.Greater(t, r.send(0, primitives.Command{Kind: primitives.CmdGetTransitionCount}).Count, 2,
		"history keeps what the queue dropped")
}

func TestAnalogStreamFaultRestarts(t *testing.T) {
	stream := extensibility.NewSimStream(8)
	r := newRig(t, Config{AnalogMode: AnalogModeStream}, WithAnalogStream(stream))
	lick := &primitives.Definition{
		Name: "lick",
		Rows: []primitives.Row{
			primitives.NewRow(0, 1, 0).On(0, 1),
			primitives.NewRow(1, 1, 0),
		},
		Routing: primitives.Routing{
			InputType:    primitives.InputAnalog,
			NumInChans:   1,
			InputEvents:  []int{0, primitives.NoRoute},
			NumEventCols: 1,
		},
	}
	r.load(0, lick)

	stream.Feed(4000)
	r.cycles(1)
	assert.Equal(t, 1, r.rt.Machine(0).Current(), "crossing the high threshold is an edge")

	stream.Overflow()
	r.cycles(1)
	st := r.rt.Stats()
	assert.Equal(t, uint64(1), st.AIOverflows)
	assert.Equal(t, uint64(1), st.AIRestarts)
	assert.True(t, stream.Running())
}

type panicPort struct{ *extensibility.SimPort }

func (panicPort) ReadDigital() (uint32, error) { panic("driver bug") }

func TestCycleRecoversPanic(t *testing.T) {
	tr := production.NewChannelTransport(1)
	clock := NewManualClock(0)
	rt, err := New(Config{Machines: 1, InlineHelpers: true}, panicPort{extensibility.NewSimPort()}, tr, WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, tr.Submit(context.Background(), 0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: timeoutDef()}))
	for i := 0; i < 3; i++ {
		assert.NotPanics(t, rt.Cycle)
	}
	st := rt.Stats()
	assert.Equal(t, uint64(3), st.Cycles)
	assert.Positive(t, st.InternalErrors)
}

func TestIOErrorsAreCounted(t *testing.T) {
	r := newRig(t, Config{})
	r.load(0, timeoutDef())
	r.port.FailNextRead(errors.New("bus timeout"))
	r.cycles(1)
	assert.Equal(t, uint64(1), r.rt.Stats().IOErrors)
}

// slowPort spends 2 ms of clock time in every digital read.
type slowPort struct {
	*extensibility.SimPort
	clock *ManualClock
}

func (p slowPort) ReadDigital() (uint32, error) {
	p.clock.Advance(ms(2))
	return p.SimPort.ReadDigital()
}

func TestOverrunsAndResync(t *testing.T) {
	clock := NewManualClock(ms(20))
	tr := production.NewChannelTransport(1)
	port := slowPort{extensibility.NewSimPort(), clock}
	rt, err := New(Config{Machines: 1, InlineHelpers: true}, port, tr, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, tr.Submit(context.Background(), 0, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: timeoutDef()}))

	require.NoError(t, rt.Run(context.Background()))
	st := rt.Stats()
	assert.Positive(t, st.Overruns)
	assert.Positive(t, st.Resyncs)
	assert.GreaterOrEqual(t, st.MaxCycle, ms(2))
}

// lateClock wakes 200 µs late on every fifth sleep.
type lateClock struct {
	*ManualClock
	sleeps int
}

func (c *lateClock) SleepUntil(ctx context.Context, t time.Duration) error {
	c.sleeps++
	if c.sleeps%5 == 0 {
		t += 200 * time.Microsecond
	}
	return c.ManualClock.SleepUntil(ctx, t)
}

func TestWakeJitterIsCounted(t *testing.T) {
	clock := &lateClock{ManualClock: NewManualClock(ms(50))}
	rt, err := New(Config{Machines: 1}, extensibility.NewSimPort(), production.NewChannelTransport(1), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, rt.Run(context.Background()))

	st := rt.Stats()
	assert.Positive(t, st.Jitters)
	assert.GreaterOrEqual(t, st.Resyncs, st.Jitters)
	assert.Zero(t, st.Overruns)
}

// earlyClock wakes 200 µs early on every fifth sleep.
type earlyClock struct {
	*ManualClock
	sleeps int
}

func (c *earlyClock) SleepUntil(ctx context.Context, t time.Duration) error {
	c.sleeps++
	if c.sleeps%5 == 0 {
		t -= 200 * time.Microsecond
	}
	return c.ManualClock.SleepUntil(ctx, t)
}

func TestEarlyWakeIsJitterWithoutResync(t *testing.T) {
	clock := &earlyClock{ManualClock: NewManualClock(ms(50))}
	rt, err := New(Config{Machines: 1}, extensibility.NewSimPort(), production.NewChannelTransport(1), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, rt.Run(context.Background()))

	st := rt.Stats()
	assert.Positive(t, st.Jitters)
	assert.Zero(t, st.Resyncs, "an early wake keeps the schedule")
}

func TestRunStopsAtClockLimit(t *testing.T) {
	clock := NewManualClock(ms(10))
	rt, err := New(Config{Machines: 1}, extensibility.NewSimPort(), production.NewChannelTransport(1), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, rt.Run(context.Background()))
	assert.Equal(t, uint64(11), rt.Stats().Cycles)
	assert.Len(t, rt.Status(), 1)
}

func TestRunHonoursContext(t *testing.T) {
	rt, err := New(Config{Machines: 1}, extensibility.NewSimPort(), production.NewChannelTransport(1))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, rt.Run(ctx))
	assert.Positive(t, rt.Stats().Cycles)
}
