package realtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/primitives"
)

// Handoff slot states. The sign is the contract: the real-time side only
// writes the job while idle and only reads results while done; the helper
// only touches the job while busy.
const (
	slotIdle int32 = 0
	slotBusy int32 = 1
	slotDone int32 = -1
)

// job is a slow command carried across the handoff slot, with the inputs the
// real-time side captured when pending it and the results the helper built.
type job struct {
	cmd primitives.Command

	standby    *core.DefinitionBuffer // replace: the only buffer the helper writes
	active     *primitives.Definition // snapshot source; definitions are immutable once installed
	waveBudget int                    // upload: samples still allowed in this machine

	snapshot *primitives.Definition
	history  *core.History
	wave     *core.AnalogWave
	err      error
}

type handoff struct {
	state atomic.Int32
	job   job
	wake  chan struct{}
}

// pend starts the RT half of a slow command and hands it to machine i's
// helper.
func (rt *Runtime) pend(i int, cmd primitives.Command) {
	m := rt.machines[i]
	slot := &rt.slots[i]
	slot.job = job{cmd: cmd}

	switch cmd.Kind {
	case primitives.CmdReset:
		m.BeginReset(&rt.out)
	case primitives.CmdReplaceDefinition:
		if cmd.Definition == nil {
			slot.job.err = fmt.Errorf("%w: no definition given", primitives.ErrInvalidDefinition)
			break
		}
		slot.job.standby = m.PrepareReplace()
	case primitives.CmdGetDefinition:
		slot.job.active = m.Active()
	case primitives.CmdUploadWave:
		used := m.AnalogWaveSamples()
		if cmd.Wave != nil && m.AnalogWaves().Loaded(cmd.Wave.ID) {
			used -= m.AnalogWaves().SlotLen(cmd.Wave.ID)
		}
		slot.job.waveBudget = rt.cfg.MaxWaveSamples - used
	}

	slot.state.Store(slotBusy)
	if rt.cfg.InlineHelpers {
		rt.runJob(&slot.job)
		slot.state.Store(slotDone)
		return
	}
	select {
	case slot.wake <- struct{}{}:
	default:
	}
}

// helperLoop is machine i's helper goroutine.
func (rt *Runtime) helperLoop(ctx context.Context, i int) {
	slot := &rt.slots[i]
	for {
		select {
		case <-ctx.Done():
			return
		case <-slot.wake:
			if slot.state.Load() != slotBusy {
				continue
			}
			rt.runJob(&slot.job)
			slot.state.Store(slotDone)
		}
	}
}

// runJob does the unbounded work of a slow command. It runs on the helper
// goroutine and never touches run state.
func (rt *Runtime) runJob(j *job) {
	switch j.cmd.Kind {
	case primitives.CmdReset:
		j.history = core.NewHistory(rt.cfg.HistoryCapacity)
	case primitives.CmdReplaceDefinition:
		if j.standby == nil {
			return
		}
		d := j.cmd.Definition.Clone()
		d.Version = primitives.ComputeVersion(d)
		j.standby.Def = d
	case primitives.CmdGetDefinition:
		j.snapshot = j.active.Clone()
	case primitives.CmdUploadWave:
		j.wave, j.err = rt.buildWave(j.cmd.Wave, j.waveBudget)
	}
}

func (rt *Runtime) buildWave(u *primitives.AnalogWaveUpload, budget int) (*core.AnalogWave, error) {
	switch {
	case u == nil:
		return nil, fmt.Errorf("%w: no wave given", primitives.ErrInvalidDefinition)
	case u.ID < 0 || u.ID >= primitives.MaxWaves:
		return nil, fmt.Errorf("%w: %d", primitives.ErrWaveRange, u.ID)
	case u.Line < 0 || u.Line >= rt.cfg.AnalogOutChannels:
		return nil, fmt.Errorf("%w: analog output %d (have %d)", primitives.ErrChannelRange, u.Line, rt.cfg.AnalogOutChannels)
	}
	n := len(u.Samples)
	if n > primitives.MaxAOSamples {
		n = primitives.MaxAOSamples
	}
	if n > budget {
		return nil, fmt.Errorf("%w: %d samples, %d left", primitives.ErrWaveBudget, n, budget)
	}
	return core.NewAnalogWave(u), nil
}

// finalize completes a slow command on the real-time side and replies.
func (rt *Runtime) finalize(i int) {
	m := rt.machines[i]
	j := &rt.slots[i].job
	r := primitives.Reply{Kind: j.cmd.Kind, Seq: j.cmd.Seq, Err: j.err}

	switch j.cmd.Kind {
	case primitives.CmdReset:
		m.FinishReset(j.history)
	case primitives.CmdReplaceDefinition:
		if r.Err == nil {
			r.Err = m.FinalizeReplace(rt.limits, &rt.out)
		} else {
			m.RejectDefinition(&rt.out)
		}
		r.Flag = r.Err == nil
	case primitives.CmdGetDefinition:
		r.Definition = j.snapshot
	case primitives.CmdUploadWave:
		if j.cmd.Wave != nil && j.cmd.Wave.ID >= 0 && j.cmd.Wave.ID < primitives.MaxWaves {
			m.InstallAnalogWave(j.cmd.Wave.ID, j.wave)
		}
		r.Flag = r.Err == nil
	}
	if r.Err != nil {
		rt.log.Warn("slow command failed",
			zap.Int("machine", i), zap.Stringer("command", j.cmd.Kind), zap.Error(r.Err))
	}
	*j = job{}
	rt.reply(i, r)
}

// acquisitionHelper restarts a faulted analog stream off the real-time
// goroutine. Requests made while a restart is queued coalesce.
type acquisitionHelper struct {
	restart chan struct{}
}

func (a *acquisitionHelper) init() { a.restart = make(chan struct{}, 1) }

func (a *acquisitionHelper) request(rt *Runtime) {
	if rt.cfg.InlineHelpers {
		rt.restartStream(context.Background())
		return
	}
	select {
	case a.restart <- struct{}{}:
	default:
	}
}

func (a *acquisitionHelper) loop(ctx context.Context, rt *Runtime) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.restart:
			rt.restartStream(ctx)
		}
	}
}

func (rt *Runtime) restartStream(ctx context.Context) {
	if err := rt.stream.Restart(ctx); err != nil {
		rt.log.Warn("analog stream restart failed", zap.Error(err))
		return
	}
	rt.counters.aiRestarts.Add(1)
	rt.log.Info("analog stream restarted")
}
