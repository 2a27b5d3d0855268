package production

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/comalice/rtfsm/internal/primitives"
)

// ErrMachineRange is returned for a machine index the transport does not serve.
var ErrMachineRange = errors.New("machine index out of range")

// Default queue depths.
const (
	DefaultCommandDepth    = 16
	DefaultReplyDepth      = 16
	DefaultTransitionDepth = 4096
	DefaultNotifyDepth     = 256
	DefaultScanDepth       = 4096
)

// TransportOption configures a ChannelTransport.
type TransportOption func(*ChannelTransport)

// WithCommandDepth sets the per-machine command and reply queue depth.
func WithCommandDepth(n int) TransportOption {
	return func(t *ChannelTransport) { t.cmdDepth = n }
}

// WithTransitionDepth sets the per-machine transition queue depth.
func WithTransitionDepth(n int) TransportOption {
	return func(t *ChannelTransport) { t.transDepth = n }
}

// WithScanDepth sets the per-machine acquisition scan queue depth.
func WithScanDepth(n int) TransportOption {
	return func(t *ChannelTransport) { t.scanDepth = n }
}

// queues holds one machine's channels. The loop is the only sender on the
// outbound channels and the only receiver on cmds.
type queues struct {
	cmds        chan primitives.Command
	replies     chan primitives.Reply
	transitions chan primitives.StateTransition
	notes       chan primitives.Notification
	scans       chan primitives.DAQScan
	dropped     atomic.Uint64
}

// ChannelTransport carries commands and results between the scan loop and
// control programs over buffered Go channels. The loop side never blocks:
// when a queue is full the message is dropped and counted.
type ChannelTransport struct {
	cmdDepth, transDepth, scanDepth int
	machines                        []*queues
}

// NewChannelTransport creates queues for the given number of machines.
func NewChannelTransport(machines int, opts ...TransportOption) *ChannelTransport {
	t := &ChannelTransport{
		cmdDepth:   DefaultCommandDepth,
		transDepth: DefaultTransitionDepth,
		scanDepth:  DefaultScanDepth,
	}
	for _, opt := range opts {
		opt(t)
	}
	replyDepth := t.cmdDepth
	if replyDepth < DefaultReplyDepth {
		replyDepth = DefaultReplyDepth
	}
	t.machines = make([]*queues, machines)
	for i := range t.machines {
		t.machines[i] = &queues{
			cmds:        make(chan primitives.Command, t.cmdDepth),
			replies:     make(chan primitives.Reply, replyDepth),
			transitions: make(chan primitives.StateTransition, t.transDepth),
			notes:       make(chan primitives.Notification, DefaultNotifyDepth),
			scans:       make(chan primitives.DAQScan, t.scanDepth),
		}
	}
	return t
}

// Machines returns the number of machines served.
func (t *ChannelTransport) Machines() int { return len(t.machines) }

func (t *ChannelTransport) queue(m int) *queues {
	if m < 0 || m >= len(t.machines) {
		return nil
	}
	return t.machines[m]
}

// PollCommand returns the next pending command for machine m, if any.
func (t *ChannelTransport) PollCommand(m int) (primitives.Command, bool) {
	q := t.queue(m)
	if q == nil {
		return primitives.Command{}, false
	}
	select {
	case cmd := <-q.cmds:
		return cmd, true
	default:
		return primitives.Command{}, false
	}
}

func (t *ChannelTransport) Reply(m int, r primitives.Reply) bool {
	q := t.queue(m)
	return q != nil && offer(q, q.replies, r)
}

func (t *ChannelTransport) Transition(m int, st primitives.StateTransition) bool {
	q := t.queue(m)
	return q != nil && offer(q, q.transitions, st)
}

func (t *ChannelTransport) Notify(m int, n primitives.Notification) bool {
	q := t.queue(m)
	return q != nil && offer(q, q.notes, n)
}

func (t *ChannelTransport) Scan(m int, s primitives.DAQScan) bool {
	q := t.queue(m)
	return q != nil && offer(q, q.scans, s)
}

func offer[T any](q *queues, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Submit enqueues cmd for machine m, blocking until there is room or ctx is
// done.
func (t *ChannelTransport) Submit(ctx context.Context, m int, cmd primitives.Command) error {
	q := t.queue(m)
	if q == nil {
		return fmt.Errorf("machine %d: %w", m, ErrMachineRange)
	}
	select {
	case q.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replies returns machine m's reply queue, or nil for an unknown machine.
func (t *ChannelTransport) Replies(m int) <-chan primitives.Reply {
	if q := t.queue(m); q != nil {
		return q.replies
	}
	return nil
}

// Transitions returns machine m's transition stream.
func (t *ChannelTransport) Transitions(m int) <-chan primitives.StateTransition {
	if q := t.queue(m); q != nil {
		return q.transitions
	}
	return nil
}

// Notifications returns machine m's notify-column messages.
func (t *ChannelTransport) Notifications(m int) <-chan primitives.Notification {
	if q := t.queue(m); q != nil {
		return q.notes
	}
	return nil
}

// Scans returns machine m's acquisition scans.
func (t *ChannelTransport) Scans(m int) <-chan primitives.DAQScan {
	if q := t.queue(m); q != nil {
		return q.scans
	}
	return nil
}

// Dropped returns how many outbound messages for machine m were discarded
// because their queue was full.
func (t *ChannelTransport) Dropped(m int) uint64 {
	if q := t.queue(m); q != nil {
		return q.dropped.Load()
	}
	return 0
}

// DrainTransitions returns every transition currently queued for machine m
// without blocking.
func (t *ChannelTransport) DrainTransitions(m int) []primitives.StateTransition {
	q := t.queue(m)
	if q == nil {
		return nil
	}
	var out []primitives.StateTransition
	for {
		select {
		case st := <-q.transitions:
			out = append(out, st)
		default:
			return out
		}
	}
}
