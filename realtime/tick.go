package realtime

import (
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/primitives"
)

// processCycle runs the phases of one cycle in order: trigger expiry, input
// sampling, per-machine commands and steps, one batched output commit, then
// acquisition for channels not sampled yet.
func (rt *Runtime) processCycle() {
	rt.cycleStart = rt.clock.Now()
	var ext int64
	if rt.ext != nil {
		ext = rt.ext.Now()
	}
	rt.out.Reset(rt.doInUse)

	for _, m := range rt.machines {
		m.Refresh(rt.cycleStart, ext)
		m.ExpireTriggers(&rt.out)
	}

	rt.readInputs()
	in := core.Inputs{
		Digital:     rt.digital,
		PrevDigital: rt.prevDigital,
		Analog:      rt.analog,
		PrevAnalog:  rt.prevAnalog,
	}
	for i, m := range rt.machines {
		rt.serviceCommands(i)
		m.Step(in, &rt.out)
	}

	rt.commitOutputs()

	rt.cycleSpent = rt.clock.Now() - rt.cycleStart
	rt.counters.observeCycle(rt.cycleSpent)
	if rt.cycleSpent+time.Microsecond > rt.cfg.Period {
		rt.counters.overruns.Add(1)
		rt.log.Debug("cycle overrun", zap.Duration("spent", rt.cycleSpent))
	}

	rt.acquire()
}

// readInputs takes one bulk digital scan and one analog scan when any
// machine routes inputs of that kind.
func (rt *Runtime) readInputs() {
	rt.sampled = 0
	rt.prevDigital = rt.digital
	if !rt.diInUse.Empty() {
		bits, err := rt.port.ReadDigital()
		if err != nil {
			rt.ioError("read digital", err)
		} else {
			rt.digital = primitives.Bits(bits)
		}
	}
	if rt.aiInUse.Empty() {
		rt.prevAnalog = rt.analog
		return
	}
	levels := rt.analog
	switch rt.cfg.AnalogMode {
	case AnalogModeStream:
		if err := rt.stream.TakeFault(); err != nil {
			rt.counters.aiOverflows.Add(1)
			rt.log.Warn("analog acquisition fault", zap.Error(err))
			rt.acq.request(rt)
		}
		if rt.stream.Latest(rt.samples[:rt.cfg.AnalogInChannels]) {
			rt.sampled = primitives.RangeMask(0, rt.cfg.AnalogInChannels-1)
		}
	default:
		rt.aiInUse.Each(func(ch int) {
			s, err := rt.port.ReadAnalog(ch)
			if err != nil {
				rt.ioError("read analog", err)
				return
			}
			rt.samples[ch] = s
			rt.sampled.Set(ch)
		})
	}
	(rt.aiInUse & rt.sampled).Each(func(ch int) {
		levels = core.Classify(levels, ch, rt.samples[ch], rt.cfg.Thresholds)
	})
	rt.prevAnalog = rt.analog
	rt.analog = levels
}

// commitOutputs merges every machine's forced outputs into the batch and
// writes it once. Forced lines are OR-ed in without arbitration between
// machines.
func (rt *Runtime) commitOutputs() {
	for _, m := range rt.machines {
		if f := m.ForcedOutputs(); !f.Empty() {
			rt.out.Force(f)
		}
	}
	mask, bits := rt.out.Pending()
	if mask.Empty() {
		return
	}
	if rt.cfg.AvoidRedundantWrites && bits&mask == rt.hwState&mask {
		rt.counters.skippedWrites.Add(1)
		return
	}
	if err := rt.port.WriteDigital(uint32(mask), uint32(bits)); err != nil {
		rt.ioError("write digital", err)
		return
	}
	rt.hwState = (rt.hwState &^ mask) | (bits & mask)
}

// acquire publishes one scan per machine with an acquisition set, reading
// synchronously any channel the cycle has not sampled yet.
func (rt *Runtime) acquire() {
	for i, m := range rt.machines {
		chans := m.Acquisition()
		if chans.Empty() {
			continue
		}
		scan := primitives.DAQScan{
			TS:       m.Runtime(),
			Channels: chans,
			Samples:  make([]uint16, 0, chans.Count()),
		}
		chans.Each(func(ch int) {
			if !rt.sampled.Has(ch) {
				s, err := rt.port.ReadAnalog(ch)
				if err != nil {
					rt.ioError("read analog", err)
				}
				rt.samples[ch] = s
				rt.sampled.Set(ch)
			}
			scan.Samples = append(scan.Samples, rt.samples[ch])
		})
		if !rt.tr.Scan(i, scan) {
			rt.drop(i, "scan")
		}
	}
}

func (rt *Runtime) ioError(op string, err error) {
	rt.counters.ioErrors.Add(1)
	rt.log.Warn("io error", zap.String("op", op), zap.Error(err))
}
