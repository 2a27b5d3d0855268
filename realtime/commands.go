package realtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
)

// serviceCommands finalizes a completed helper job and then reads at most one
// command for machine i. Nothing is read while the helper is busy.
func (rt *Runtime) serviceCommands(i int) {
	slot := &rt.slots[i]
	switch st := slot.state.Load(); {
	case st > 0:
		return
	case st < 0:
		rt.finalize(i)
		slot.state.Store(slotIdle)
	}

	cmd, ok := rt.tr.PollCommand(i)
	if !ok {
		return
	}
	if cmd.Kind.Slow() {
		rt.pend(i, cmd)
		return
	}
	rt.reply(i, rt.execute(i, cmd))
}

// execute runs a fast command and builds its reply within the cycle.
func (rt *Runtime) execute(i int, cmd primitives.Command) primitives.Reply {
	m := rt.machines[i]
	r := primitives.Reply{Kind: cmd.Kind, Seq: cmd.Seq}
	switch cmd.Kind {
	case primitives.CmdGetTransitionCount:
		r.Count = m.History().Count()
	case primitives.CmdGetTransitions:
		r.Transitions = m.History().Window(cmd.From, cmd.Count)
		r.Count = len(r.Transitions)
	case primitives.CmdPauseToggle:
		r.Flag = m.TogglePause()
	case primitives.CmdGetPause:
		r.Flag = m.Paused()
	case primitives.CmdInvalidate:
		m.Invalidate()
	case primitives.CmdGetValid:
		r.Flag = m.Valid()
	case primitives.CmdGetDefinitionSize:
		if m.Valid() {
			r.Rows, r.Cols = m.Active().Size()
		}
	case primitives.CmdGetInputEventCount:
		if m.Valid() {
			r.Count = m.Active().Routing.NumEventCols
		}
	case primitives.CmdForceEvent:
		r.Err = m.ForceEvent(cmd.Event)
	case primitives.CmdForceTimeout:
		m.ForceTimeout()
	case primitives.CmdForceSound:
		m.ForceSound(cmd.Sound)
	case primitives.CmdForceOutput:
		m.ForceOutput(cmd.Mask, &rt.out)
	case primitives.CmdGetRuntime:
		r.Runtime = m.Runtime()
	case primitives.CmdReadyForTrial:
		m.ReadyForTrial(&rt.out)
	case primitives.CmdGetCurrentState:
		r.State = m.Current()
	case primitives.CmdForceState:
		if r.Err = m.ForceState(cmd.State, &rt.out); r.Err != nil {
			r.State = -1
		} else {
			r.State = m.Current()
		}
	case primitives.CmdStartAcquisition:
		r.Acquisition = primitives.AcquisitionInfo{
			Channels:  m.StartAcquisition(primitives.Bits(cmd.Mask), rt.cfg.AnalogInChannels),
			RangeMinV: rt.cfg.AIRangeMinV,
			RangeMaxV: rt.cfg.AIRangeMaxV,
			MaxData:   rt.cfg.AIMaxData,
		}
	case primitives.CmdStopAcquisition:
		m.StopAcquisition()
	case primitives.CmdGetAnalogOutputMax:
		r.AOMax = rt.cfg.AOMaxData
	default:
		r.Err = fmt.Errorf("%w: %d", primitives.ErrUnknownCommand, int(cmd.Kind))
	}
	if r.Err != nil {
		rt.log.Debug("command failed",
			zap.Int("machine", i), zap.Stringer("command", cmd.Kind), zap.Error(r.Err))
	}
	return r
}

func (rt *Runtime) reply(i int, r primitives.Reply) {
	if !rt.tr.Reply(i, r) {
		rt.drop(i, "reply")
	}
}
