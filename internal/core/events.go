package core

import "github.com/comalice/rtfsm/internal/primitives"

// Thresholds are the raw-sample levels of the analog hysteresis band.
type Thresholds struct {
	High uint16 `json:"high" yaml:"high"`
	Low  uint16 `json:"low" yaml:"low"`
}

// Input levels, in volts, at which an analog line reads as 1 and 0.
const (
	HighVolts = 4.0
	LowVolts  = 3.0
)

// ThresholdsFromRange converts HighVolts/LowVolts to raw samples for a
// converter spanning minV..maxV over 0..maxData.
func ThresholdsFromRange(minV, maxV float64, maxData uint16) Thresholds {
	span := maxV - minV
	if span <= 0 {
		return Thresholds{High: maxData, Low: maxData}
	}
	raw := func(v float64) uint16 {
		x := (v - minV) / span * float64(maxData)
		switch {
		case x < 0:
			return 0
		case x > float64(maxData):
			return maxData
		}
		return uint16(x)
	}
	return Thresholds{High: raw(HighVolts), Low: raw(LowVolts)}
}

// Classify returns levels with channel ch updated from sample: above High
// reads 1, below Low reads 0, and inside the band the previous level holds.
func Classify(levels primitives.Bits, ch int, sample uint16, th Thresholds) primitives.Bits {
	switch {
	case sample >= th.High:
		return levels.With(ch)
	case sample <= th.Low:
		return levels.Without(ch)
	}
	return levels
}

// DetectEdges compares this cycle's levels with the previous cycle's for every
// routed input channel and returns the set of event ids that fired.
func DetectEdges(r *primitives.Routing, cur, prev primitives.Bits) primitives.Bits {
	var events primitives.Bits
	changed := (cur ^ prev) & primitives.RangeMask(r.FirstInChan, r.FirstInChan+r.NumInChans-1)
	for {
		ch, ok := changed.PopLowest()
		if !ok {
			return events
		}
		if ev := r.InputEvent(ch, cur.Has(ch)); ev >= 0 {
			events.Set(ev)
		}
	}
}
