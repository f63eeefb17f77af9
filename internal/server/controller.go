package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/input"
	"github.com/bnema/onekm/internal/ipc"
	"github.com/bnema/onekm/internal/keymap"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/network"
	"github.com/bnema/onekm/internal/protocol"
)

var (
	// ErrCaptureClosed is returned when the capture source stops delivering events
	ErrCaptureClosed = errors.New("capture closed")
	// ErrLinkLost is returned when a link that cannot be re-established goes down
	ErrLinkLost = errors.New("link lost")
	// ErrControllerStopped is returned to IPC callers once the loop has exited
	ErrControllerStopped = errors.New("controller stopped")
	// ErrNoTarget is returned when switching to REMOTE without a connected target
	ErrNoTarget = errors.New("no target connected")
)

// heartbeatHold is how long the heartbeat keeps L-Shift down
const heartbeatHold = 100 * time.Millisecond

// FrameSink is the outbound side of the link
type FrameSink interface {
	SendAll(msgs []protocol.Message) error
	Connected() bool
	Stats() (sent, dropped uint64)
	Errors() <-chan error
}

// LoopOptions tunes the controller loop
type LoopOptions struct {
	BatchSize int
	IdleFlush time.Duration
	Heartbeat time.Duration
	// ExitOnLinkLoss ends the loop when the link fails, used for serial links
	ExitOnLinkLoss bool
}

// LoopOptionsFromConfig builds loop options from the controller and transport sections
func LoopOptionsFromConfig(cfg *config.Config) LoopOptions {
	return LoopOptions{
		BatchSize:      cfg.Controller.BatchSize,
		IdleFlush:      time.Duration(cfg.Controller.IdleFlushMS) * time.Millisecond,
		Heartbeat:      time.Duration(cfg.Controller.HeartbeatSecs) * time.Second,
		ExitOnLinkLoss: cfg.Transport.Kind == "serial",
	}
}

type request struct {
	kind  ipc.RequestKind
	exit  bool
	reply chan response
}

type response struct {
	status ipc.Status
	err    error
}

// Controller owns a Session and drives it from the capture stream. All session
// access happens on the Run goroutine; IPC and emergency requests are posted to it.
type Controller struct {
	session *Session
	events  <-chan input.RawEvent
	sink    FrameSink
	links   <-chan network.LinkState
	opts    LoopOptions

	requests chan request
	done     chan struct{}
	doneOnce sync.Once

	link network.LinkState

	mu       sync.RWMutex
	status   ipc.Status
	onStatus func(ipc.Status)
}

// NewController wires a session to a capture stream and a frame sink.
// links may be nil when the link is always up.
func NewController(session *Session, events <-chan input.RawEvent, sink FrameSink, links <-chan network.LinkState, opts LoopOptions) *Controller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.IdleFlush <= 0 {
		opts.IdleFlush = 5 * time.Millisecond
	}
	c := &Controller{
		session:  session,
		events:   events,
		sink:     sink,
		links:    links,
		opts:     opts,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	if links == nil {
		c.link = network.LinkState{Up: true}
	}
	c.status = c.snapshot()
	return c
}

// OnStatusChange registers a callback invoked from the loop after each change
func (c *Controller) OnStatusChange(callback func(ipc.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = callback
}

// Status returns the last published status
func (c *Controller) Status() ipc.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run processes events until an exit condition. A nil error means a requested exit
// (hotkey guard, Ctrl+C, IPC or context cancellation).
func (c *Controller) Run(ctx context.Context) (err error) {
	defer c.doneOnce.Do(func() { close(c.done) })
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("controller panic: %v", r)
		}
		c.shutdown()
	}()

	var idle <-chan time.Time
	var heartbeat <-chan time.Time
	var heartbeatRelease <-chan time.Time
	if c.opts.Heartbeat > 0 {
		ticker := time.NewTicker(c.opts.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		if c.session.ExitRequested() {
			logger.Infof("Exit requested: %s", c.session.ExitReason())
			return nil
		}

		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-c.events:
			if !ok {
				return ErrCaptureClosed
			}
			c.drain(ev)
			idle = nil
			if c.session.HasPendingMotion() {
				idle = time.After(c.opts.IdleFlush)
			}

		case <-idle:
			idle = nil
			c.send(c.session.Flush())

		case st := <-c.links:
			if err := c.handleLink(st); err != nil {
				return err
			}

		case err := <-c.sink.Errors():
			logger.Errorf("Link write failed: %v", err)
			if c.session.State() == Remote {
				c.send(c.session.SwitchTo(Local))
			}
			if c.opts.ExitOnLinkLoss {
				return fmt.Errorf("%w: %v", ErrLinkLost, err)
			}

		case req := <-c.requests:
			req.reply <- c.handleRequest(req)

		case <-heartbeat:
			if c.session.State() == Local && c.sink.Connected() && heartbeatRelease == nil {
				logger.Debug("Sending heartbeat")
				c.send([]protocol.Message{protocol.KeyboardReport{Report: hid.KeyboardReport{Modifiers: keymap.ModLeftShift}}})
				heartbeatRelease = time.After(heartbeatHold)
			}

		case <-heartbeatRelease:
			heartbeatRelease = nil
			// In REMOTE this restates the held keys, in LOCAL it is empty
			c.send([]protocol.Message{protocol.KeyboardReport{Report: c.session.Report()}})
		}

		c.publish()
	}
}

// drain handles ev plus whatever else is immediately available, up to the batch size
func (c *Controller) drain(ev input.RawEvent) {
	var out []protocol.Message
	out = append(out, c.session.Handle(ev)...)
	for i := 1; i < c.opts.BatchSize; i++ {
		select {
		case next, ok := <-c.events:
			if !ok {
				c.send(out)
				return
			}
			out = append(out, c.session.Handle(next)...)
		default:
			c.send(out)
			return
		}
	}
	c.send(out)
}

func (c *Controller) handleLink(st network.LinkState) error {
	wasUp := c.link.Up
	c.link = st

	if st.Up {
		logger.Infof("Target connected: %s", st.Peer)
		return nil
	}

	logger.Warn("Target disconnected")
	if c.session.State() == Remote {
		c.send(c.session.SwitchTo(Local))
	}
	if wasUp && c.opts.ExitOnLinkLoss {
		return ErrLinkLost
	}
	return nil
}

func (c *Controller) handleRequest(req request) response {
	switch req.kind {
	case ipc.RequestSwitch:
		if c.session.State() == Local && !c.link.Up {
			return response{status: c.snapshot(), err: ErrNoTarget}
		}
		c.send(c.session.Toggle())
	case ipc.RequestRelease:
		if c.session.State() == Remote {
			c.send(c.session.SwitchTo(Local))
		}
		if req.exit {
			c.session.requestExit("release")
		}
	}
	return response{status: c.snapshot()}
}

// send forwards frames to the link. A missing link only matters in REMOTE.
func (c *Controller) send(msgs []protocol.Message) {
	if len(msgs) == 0 {
		return
	}
	err := c.sink.SendAll(msgs)
	switch {
	case err == nil:
	case errors.Is(err, network.ErrNotConnected):
		logger.Debugf("Dropped %d frames: %v", len(msgs), err)
	default:
		logger.Warnf("Failed to queue frames: %v", err)
	}
}

func (c *Controller) shutdown() {
	c.send(c.session.Shutdown())
	c.publish()
}

func (c *Controller) snapshot() ipc.Status {
	sent, dropped := c.sink.Stats()
	return ipc.Status{
		Remote:        c.session.State() == Remote,
		Connected:     c.link.Up,
		Peer:          c.link.Peer,
		Sent:          sent,
		Dropped:       dropped,
		ExitRequested: c.session.ExitRequested(),
		ExitReason:    c.session.ExitReason(),
	}
}

func (c *Controller) publish() {
	st := c.snapshot()

	c.mu.Lock()
	changed := st != c.status
	c.status = st
	callback := c.onStatus
	c.mu.Unlock()

	if changed && callback != nil {
		callback(st)
	}
}

// post hands a request to the loop and waits for the answer
func (c *Controller) post(kind ipc.RequestKind, exit bool) (ipc.Status, error) {
	req := request{kind: kind, exit: exit, reply: make(chan response, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return c.Status(), ErrControllerStopped
	}
	resp := <-req.reply
	return resp.status, resp.err
}

// HandleSwitch toggles LOCAL/REMOTE as the hotkey does
func (c *Controller) HandleSwitch() (ipc.Status, error) {
	return c.post(ipc.RequestSwitch, false)
}

// HandleRelease forces LOCAL and optionally ends the loop
func (c *Controller) HandleRelease(exit bool) (ipc.Status, error) {
	return c.post(ipc.RequestRelease, exit)
}

// HandleStatus reports the current mode, link and counters
func (c *Controller) HandleStatus() (ipc.Status, error) {
	select {
	case <-c.done:
		return c.Status(), nil
	default:
	}
	return c.post(ipc.RequestStatus, false)
}

// ForceLocal is used by emergency release
func (c *Controller) ForceLocal(reason string) error {
	logger.Warnf("Forcing LOCAL (reason: %s)", reason)
	_, err := c.HandleRelease(false)
	return err
}
