package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/motion"
	"github.com/bnema/onekm/internal/protocol"
)

// ReportWriter emits boot-protocol HID reports
type ReportWriter interface {
	WriteKeyboard(report [8]byte) error
	WriteMouse(report [5]byte) error
}

// Coalescer decouples the link from a slow HID sink. The receive side calls
// Apply; Run drains the pending state under the same mutex and writes reports
// outside it. Motion is clamped to report width and the rest carried over.
type Coalescer struct {
	mu       sync.Mutex
	motion   motion.Accumulator
	buttons  uint8
	mice     []hid.MouseReport
	keys     []hid.KeyboardReport
	depth    int
	ready    chan struct{}
	out      ReportWriter
	dropped  atomic.Uint64
	reported atomic.Uint64
}

// NewCoalescer creates a coalescer writing to out; depth bounds queued keyboard reports
func NewCoalescer(out ReportWriter, depth int) *Coalescer {
	if depth <= 0 {
		depth = 32
	}
	return &Coalescer{
		out:   out,
		depth: depth,
		ready: make(chan struct{}, 1),
	}
}

// Apply implements Sink
func (c *Coalescer) Apply(m protocol.Message) error {
	c.mu.Lock()
	switch m := m.(type) {
	case protocol.MouseMove:
		c.motion.Add(motion.AxisX, int64(m.DX))
		c.motion.Add(motion.AxisY, int64(m.DY))
	case protocol.MouseWheel:
		c.motion.Add(motion.AxisWheel, int64(m.Vertical))
		c.motion.Add(motion.AxisHWheel, int64(m.Horizontal))
	case protocol.MouseButton:
		bit := hid.ButtonBit(m.Button)
		if bit == 0 {
			c.mu.Unlock()
			return nil
		}
		// motion that came before the click lands before it
		c.queueMotionLocked()
		if m.Pressed {
			c.buttons |= bit
		} else {
			c.buttons &^= bit
		}
		c.mice = append(c.mice, hid.MouseReport{Buttons: c.buttons})
	case protocol.KeyboardReport:
		if len(c.keys) >= c.depth {
			c.keys = c.keys[1:]
			c.dropped.Add(1)
		}
		c.keys = append(c.keys, m.Report)
	case protocol.Switch:
		c.motion.Reset()
	}
	c.mu.Unlock()

	c.signal()
	return nil
}

// ReleaseAll implements Sink
func (c *Coalescer) ReleaseAll() error {
	c.mu.Lock()
	c.motion.Reset()
	c.mice = append(c.mice[:0], hid.MouseReport{})
	c.buttons = 0
	c.keys = append(c.keys[:0], hid.KeyboardReport{})
	c.mu.Unlock()

	c.signal()
	return nil
}

// Dropped returns keyboard reports discarded because the queue was full
func (c *Coalescer) Dropped() uint64 {
	return c.dropped.Load()
}

// Reports returns the number of HID reports written
func (c *Coalescer) Reports() uint64 {
	return c.reported.Load()
}

func (c *Coalescer) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// queueMotionLocked turns all pending motion into queued reports (caller must hold mutex)
func (c *Coalescer) queueMotionLocked() {
	for !c.motion.Empty() {
		c.mice = append(c.mice, c.takeLocked())
	}
}

func (c *Coalescer) takeLocked() hid.MouseReport {
	x, _ := c.motion.Take(motion.AxisX, motion.HIDLimit)
	y, _ := c.motion.Take(motion.AxisY, motion.HIDLimit)
	w, _ := c.motion.Take(motion.AxisWheel, motion.HIDLimit)
	p, _ := c.motion.Take(motion.AxisHWheel, motion.HIDLimit)
	return hid.MouseReport{Buttons: c.buttons, X: int8(x), Y: int8(y), Wheel: int8(w), Pan: int8(p)}
}

// Run writes reports until ctx ends, then writes whatever is still pending.
// Write failures are logged and the loop keeps going, since a gadget is
// unwritable while the host is asleep.
func (c *Coalescer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-c.ready:
		}
		_ = c.drain()
	}
}

// flush drains until no residual motion re-arms the signal
func (c *Coalescer) flush() {
	for {
		_ = c.drain()
		select {
		case <-c.ready:
		default:
			return
		}
	}
}

// drain snapshots the pending state and writes it. Residual motion beyond one
// report re-arms the signal so the next pass carries it.
func (c *Coalescer) drain() error {
	c.mu.Lock()
	keys := c.keys
	c.keys = nil
	mice := c.mice
	c.mice = nil
	if !c.motion.Empty() {
		mice = append(mice, c.takeLocked())
	}
	residual := !c.motion.Empty()
	c.mu.Unlock()

	if residual {
		c.signal()
	}

	var errs []error
	for _, k := range keys {
		b := k.Bytes()
		if err := c.out.WriteKeyboard(b); err != nil {
			errs = append(errs, err)
			continue
		}
		c.reported.Add(1)
	}
	for _, m := range mice {
		if err := c.out.WriteMouse(m.Bytes()); err != nil {
			errs = append(errs, err)
			continue
		}
		c.reported.Add(1)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warnf("HID write failed: %v", err)
		return err
	}
	return nil
}
