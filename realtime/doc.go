// Package realtime provides the fixed-period scan loop that drives every
// state machine against a hardware IO port.
//
// Each cycle wakes on an absolute schedule and runs to completion:
//   - Lower trigger outputs whose sustain time has elapsed
//   - Take one bulk digital scan and one analog scan if any machine routes them
//   - Per machine: finalize a finished helper job, read one command, step
//   - Commit all digital writes as a single batched write
//   - Publish acquisition scans for channels not sampled yet
//
// # Example Usage
//
//	tr := production.NewChannelTransport(4, 64)
//	rt, err := realtime.New(realtime.Config{Period: time.Millisecond}, port, tr)
//	if err != nil {
//		return err
//	}
//	go rt.Run(ctx)
//
// # Slow Commands
//
// Reset, ReplaceDefinition, GetDefinition and UploadWave copy or allocate,
// so the loop never performs them itself. Each machine has a handoff slot
// whose sign says who owns the job: positive while the machine's helper
// goroutine works on it, negative once the result waits for the loop, zero
// when idle. While busy no further command is read for that machine. The
// loop finishes the job on its own side (validation, swap, installing a wave
// buffer) before replying.
//
// # Timing Faults
//
// A wake later than Config.JitterTolerance counts as jitter and the schedule
// restarts from the actual wake time. A cycle longer than the period counts
// as an overrun and also resynchronizes, so the loop never runs back-to-back
// catch-up cycles. Neither ever stops the loop; see Stats.
//
// # Deterministic Stepping
//
// Tests and simulations can use a ManualClock and call Cycle directly. With
// Config.InlineHelpers helper jobs run synchronously in the cycle that pends
// them, so every reply arrives in a predictable cycle.
package realtime
