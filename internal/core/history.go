package core

import "github.com/comalice/rtfsm/internal/primitives"

// History is a fixed-capacity ring of transitions. Count is monotonic; the
// ring keeps the most recent Cap() entries.
type History struct {
	buf   []primitives.StateTransition
	count int
}

// NewHistory allocates a ring. capacity <= 0 selects DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = primitives.DefaultHistoryCapacity
	}
	return &History{buf: make([]primitives.StateTransition, capacity)}
}

// Push appends a transition, overwriting the oldest once full.
func (h *History) Push(t primitives.StateTransition) {
	h.buf[h.count%len(h.buf)] = t
	h.count++
}

// Count returns the number of transitions ever pushed since the last reset.
func (h *History) Count() int { return h.count }

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.buf) }

// Window copies up to num transitions starting at absolute index from.
// Indices that have been overwritten are skipped, and the result never
// extends past Count() or MaxReplyTransitions.
func (h *History) Window(from, num int) []primitives.StateTransition {
	if oldest := h.count - len(h.buf); from < oldest {
		num -= oldest - from
		from = oldest
	}
	if from < 0 {
		num += from
		from = 0
	}
	if from >= h.count || num <= 0 {
		return nil
	}
	if avail := h.count - from; num > avail {
		num = avail
	}
	if num > primitives.MaxReplyTransitions {
		num = primitives.MaxReplyTransitions
	}
	out := make([]primitives.StateTransition, num)
	for i := range out {
		out[i] = h.buf[(from+i)%len(h.buf)]
	}
	return out
}
