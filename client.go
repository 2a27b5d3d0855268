package rtfsm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/comalice/rtfsm/internal/primitives"
	"github.com/comalice/rtfsm/internal/production"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client is a control program's handle on one machine. Calls block until the
// loop replies or ctx is done; they are serialized per client.
type Client struct {
	tr      *production.ChannelTransport
	machine int
	log     *zap.Logger

	mu  sync.Mutex
	seq uint64
}

// NewClient creates a client for machine on tr.
func NewClient(tr *production.ChannelTransport, machine int, opts ...ClientOption) *Client {
	c := &Client{tr: tr, machine: machine, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Machine returns the machine index.
func (c *Client) Machine() int { return c.machine }

func (c *Client) do(ctx context.Context, cmd primitives.Command) (primitives.Reply, error) {
	if err := ctx.Err(); err != nil {
		return primitives.Reply{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	cmd.Seq = c.seq
	if err := c.tr.Submit(ctx, c.machine, cmd); err != nil {
		return primitives.Reply{}, err
	}
	replies := c.tr.Replies(c.machine)
	for {
		select {
		case r := <-replies:
			if r.Seq != cmd.Seq {
				// Reply to a call whose context expired earlier.
				c.log.Debug("discarding stale reply",
					zap.Int("machine", c.machine), zap.Uint64("seq", r.Seq), zap.Stringer("command", r.Kind))
				continue
			}
			return r, r.Err
		case <-ctx.Done():
			return primitives.Reply{}, ctx.Err()
		}
	}
}

func (c *Client) simple(ctx context.Context, kind primitives.CommandKind) error {
	_, err := c.do(ctx, primitives.Command{Kind: kind})
	return err
}

func (c *Client) flag(ctx context.Context, kind primitives.CommandKind) (bool, error) {
	r, err := c.do(ctx, primitives.Command{Kind: kind})
	return r.Flag, err
}

// Reset clears history, definitions, waves and acquisition, leaving the
// machine paused and invalid.
func (c *Client) Reset(ctx context.Context) error { return c.simple(ctx, primitives.CmdReset) }

// TransitionCount returns the number of transitions recorded since reset.
func (c *Client) TransitionCount(ctx context.Context) (int, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetTransitionCount})
	return r.Count, err
}

// Transitions returns up to n recorded transitions starting at index from.
func (c *Client) Transitions(ctx context.Context, from, n int) ([]StateTransition, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetTransitions, From: from, Count: n})
	return r.Transitions, err
}

// PauseToggle flips the pause flag and returns the new value.
func (c *Client) PauseToggle(ctx context.Context) (bool, error) {
	return c.flag(ctx, primitives.CmdPauseToggle)
}

func (c *Client) Paused(ctx context.Context) (bool, error) {
	return c.flag(ctx, primitives.CmdGetPause)
}

// Invalidate stops the machine without discarding its definition.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.simple(ctx, primitives.CmdInvalidate)
}

func (c *Client) Valid(ctx context.Context) (bool, error) {
	return c.flag(ctx, primitives.CmdGetValid)
}

// ReplaceDefinition uploads def. The loop validates it against the hardware;
// a rejected definition leaves the machine paused and invalid.
func (c *Client) ReplaceDefinition(ctx context.Context, def *Definition) error {
	_, err := c.do(ctx, primitives.Command{Kind: primitives.CmdReplaceDefinition, Definition: def})
	return err
}

// Definition returns a copy of the active definition.
func (c *Client) Definition(ctx context.Context) (*Definition, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetDefinition})
	return r.Definition, err
}

// DefinitionSize returns the active table's rows and columns, or zeros when
// the machine is invalid.
func (c *Client) DefinitionSize(ctx context.Context) (rows, cols int, err error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetDefinitionSize})
	return r.Rows, r.Cols, err
}

func (c *Client) InputEventCount(ctx context.Context) (int, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetInputEventCount})
	return r.Count, err
}

// ForceEvent injects event id on the next cycle.
func (c *Client) ForceEvent(ctx context.Context, id int) error {
	_, err := c.do(ctx, primitives.Command{Kind: primitives.CmdForceEvent, Event: id})
	return err
}

// ForceTimeout expires the current state's timeout on the next cycle.
func (c *Client) ForceTimeout(ctx context.Context) error {
	return c.simple(ctx, primitives.CmdForceTimeout)
}

func (c *Client) ForceSound(ctx context.Context, trig int) error {
	_, err := c.do(ctx, primitives.Command{Kind: primitives.CmdForceSound, Sound: trig})
	return err
}

// ForceOutput holds the continuous output lines given by mask, shifted to
// the lowest continuous line, high until changed.
func (c *Client) ForceOutput(ctx context.Context, mask uint32) error {
	_, err := c.do(ctx, primitives.Command{Kind: primitives.CmdForceOutput, Mask: mask})
	return err
}

// Runtime returns the machine's time since its last reset.
func (c *Client) Runtime(ctx context.Context) (time.Duration, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetRuntime})
	return r.Runtime, err
}

func (c *Client) ReadyForTrial(ctx context.Context) error {
	return c.simple(ctx, primitives.CmdReadyForTrial)
}

func (c *Client) CurrentState(ctx context.Context) (int, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetCurrentState})
	return r.State, err
}

// ForceState jumps to state as if a timeout fired and returns the new
// current state.
func (c *Client) ForceState(ctx context.Context, state int) (int, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdForceState, State: state})
	return r.State, err
}

// StartAcquisition publishes the analog channels in mask every cycle.
func (c *Client) StartAcquisition(ctx context.Context, mask Bits) (AcquisitionInfo, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdStartAcquisition, Mask: uint32(mask)})
	return r.Acquisition, err
}

func (c *Client) StopAcquisition(ctx context.Context) error {
	return c.simple(ctx, primitives.CmdStopAcquisition)
}

func (c *Client) AnalogOutputMax(ctx context.Context) (uint16, error) {
	r, err := c.do(ctx, primitives.Command{Kind: primitives.CmdGetAnalogOutputMax})
	return r.AOMax, err
}

// UploadWave loads an analog wave into slot w.ID.
func (c *Client) UploadWave(ctx context.Context, w *AnalogWaveUpload) error {
	_, err := c.do(ctx, primitives.Command{Kind: primitives.CmdUploadWave, Wave: w})
	return err
}

// Start uploads def and unpauses the machine.
func (c *Client) Start(ctx context.Context, def *Definition) error {
	if err := c.ReplaceDefinition(ctx, def); err != nil {
		return err
	}
	paused, err := c.Paused(ctx)
	if err != nil || !paused {
		return err
	}
	_, err = c.PauseToggle(ctx)
	return err
}

// TransitionStream delivers every transition as it happens. Entries are
// dropped when the stream is not drained; the history keeps them.
func (c *Client) TransitionStream() <-chan StateTransition { return c.tr.Transitions(c.machine) }

// Notifications delivers notify-column messages.
func (c *Client) Notifications() <-chan Notification { return c.tr.Notifications(c.machine) }

// Scans delivers acquisition scans.
func (c *Client) Scans() <-chan DAQScan { return c.tr.Scans(c.machine) }
