package realtime

import (
	"sync/atomic"
	"time"

	"github.com/comalice/rtfsm/internal/core"
)

// Stats is a snapshot of the loop's fault and activity counters.
type Stats struct {
	Cycles         uint64        `json:"cycles" yaml:"cycles"`
	Jitters        uint64        `json:"jitters" yaml:"jitters"`
	Overruns       uint64        `json:"overruns" yaml:"overruns"`
	Resyncs        uint64        `json:"resyncs" yaml:"resyncs"`
	AIOverflows    uint64        `json:"ai_overflows" yaml:"ai_overflows"`
	AIRestarts     uint64        `json:"ai_restarts" yaml:"ai_restarts"`
	IOErrors       uint64        `json:"io_errors" yaml:"io_errors"`
	InternalErrors uint64        `json:"internal_errors" yaml:"internal_errors"`
	Dropped        uint64        `json:"dropped" yaml:"dropped"`
	SkippedWrites  uint64        `json:"skipped_writes" yaml:"skipped_writes"`
	LastCycle      time.Duration `json:"last_cycle" yaml:"last_cycle"`
	MaxCycle       time.Duration `json:"max_cycle" yaml:"max_cycle"`
}

type counters struct {
	cycles         atomic.Uint64
	jitters        atomic.Uint64
	overruns       atomic.Uint64
	resyncs        atomic.Uint64
	aiOverflows    atomic.Uint64
	aiRestarts     atomic.Uint64
	ioErrors       atomic.Uint64
	internalErrors atomic.Uint64
	dropped        atomic.Uint64
	skippedWrites  atomic.Uint64
	lastCycle      atomic.Int64
	maxCycle       atomic.Int64
}

func (c *counters) observeCycle(d time.Duration) {
	c.lastCycle.Store(int64(d))
	for {
		old := c.maxCycle.Load()
		if int64(d) <= old || c.maxCycle.CompareAndSwap(old, int64(d)) {
			return
		}
	}
}

// Stats reads the counters. Safe from any goroutine.
func (rt *Runtime) Stats() Stats {
	c := &rt.counters
	return Stats{
		Cycles:         c.cycles.Load(),
		Jitters:        c.jitters.Load(),
		Overruns:       c.overruns.Load(),
		Resyncs:        c.resyncs.Load(),
		AIOverflows:    c.aiOverflows.Load(),
		AIRestarts:     c.aiRestarts.Load(),
		IOErrors:       c.ioErrors.Load(),
		InternalErrors: c.internalErrors.Load(),
		Dropped:        c.dropped.Load(),
		SkippedWrites:  c.skippedWrites.Load(),
		LastCycle:      time.Duration(c.lastCycle.Load()),
		MaxCycle:       time.Duration(c.maxCycle.Load()),
	}
}

// Status summarizes every machine. It reads run state without
// synchronization, so it is only consistent while Run is not executing.
func (rt *Runtime) Status() []core.MachineStatus {
	out := make([]core.MachineStatus, len(rt.machines))
	for i, m := range rt.machines {
		out[i] = m.Status()
	}
	return out
}
