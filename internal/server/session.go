// Package server runs the controller side: the control state machine that turns
// captured input into frames, and the loop that drives it.
package server

import (
	"fmt"
	"time"

	"github.com/bnema/onekm/internal/config"
	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/input"
	"github.com/bnema/onekm/internal/keymap"
	"github.com/bnema/onekm/internal/keysync"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/motion"
	"github.com/bnema/onekm/internal/protocol"
	"github.com/holoplot/go-evdev"
)

// ControlState says which host receives the shared keyboard and mouse
type ControlState int

const (
	Local ControlState = iota
	Remote
)

func (s ControlState) String() string {
	if s == Remote {
		return "REMOTE"
	}
	return "LOCAL"
}

// Grabber is the capture side the session controls
type Grabber interface {
	SetGrab(grab bool) error
	// KeyState returns the keys physically held right now
	KeyState() (keysync.KeySet, error)
}

// LocalReleaser lifts keys on the controller's own OS
type LocalReleaser interface {
	ReleaseKeys(codes []evdev.EvCode) error
}

// Options configures a Session
type Options struct {
	Hotkey         evdev.EvCode
	HotkeyWindow   time.Duration
	HotkeyPresses  int
	EdgeTrigger    bool
	TargetEdge     input.Edge
	ScreenWidth    int
	ScreenHeight   int
	EdgeThreshold  int
	UnblockMargin  int
	ExitOnCtrlC    bool
	EscapeReleases bool
	LocalResync    bool
	Now            func() time.Time
}

// DefaultOptions mirrors config.DefaultConfig
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(&config.DefaultConfig.Controller)
	if err != nil {
		panic(fmt.Sprintf("default controller config is invalid: %v", err))
	}
	return opts
}

// OptionsFromConfig resolves key names and edges from the controller config
func OptionsFromConfig(c *config.ControllerConfig) (Options, error) {
	hotkey, err := keymap.Lookup(c.Hotkey)
	if err != nil {
		return Options{}, fmt.Errorf("invalid controller.hotkey: %w", err)
	}
	edge, ok := input.ParseEdge(c.TargetEdge)
	if !ok {
		return Options{}, fmt.Errorf("invalid controller.target_edge %q", c.TargetEdge)
	}
	return Options{
		Hotkey:         hotkey,
		HotkeyWindow:   time.Duration(c.HotkeyWindowMS) * time.Millisecond,
		HotkeyPresses:  c.HotkeyPresses,
		EdgeTrigger:    c.EdgeTrigger,
		TargetEdge:     edge,
		ScreenWidth:    c.ScreenWidth,
		ScreenHeight:   c.ScreenHeight,
		EdgeThreshold:  c.EdgeThreshold,
		UnblockMargin:  c.UnblockMargin,
		ExitOnCtrlC:    c.ExitOnCtrlC,
		EscapeReleases: c.EscapeReleases,
		LocalResync:    c.LocalResync,
	}, nil
}

// Session is the control state machine. It owns every piece of mutable
// state of one controller run and must be driven from a single goroutine.
type Session struct {
	opts    Options
	grabber Grabber
	local   LocalReleaser

	state   ControlState
	motion  motion.Accumulator
	lastRel evdev.EvCode
	hasLast bool
	builder hid.ReportBuilder
	buttons uint8
	edges   *input.EdgeDetector
	hotkey  *HotkeyGuard

	// keys the local OS has seen pressed and not yet released
	localKeys keysync.KeySet

	exitRequested bool
	exitReason    string
	closed        bool
}

// NewSession creates a session in LOCAL. local may be nil.
func NewSession(opts Options, grabber Grabber, local LocalReleaser) *Session {
	return &Session{
		opts:    opts,
		grabber: grabber,
		local:   local,
		state:   Local,
		edges:   input.NewEdgeDetector(opts.ScreenWidth, opts.ScreenHeight, opts.EdgeThreshold, opts.UnblockMargin),
		hotkey:  NewHotkeyGuard(opts.HotkeyWindow, opts.HotkeyPresses, opts.Now),
	}
}

// State returns the current control state
func (s *Session) State() ControlState {
	return s.state
}

// ExitRequested reports whether the session asked the process to stop
func (s *Session) ExitRequested() bool {
	return s.exitRequested
}

// ExitReason describes why exit was requested
func (s *Session) ExitReason() string {
	return s.exitReason
}

// Report returns the keyboard state the target currently sees
func (s *Session) Report() hid.KeyboardReport {
	return s.builder.Report()
}

// Edges exposes the edge detector for status display
func (s *Session) Edges() *input.EdgeDetector {
	return s.edges
}

// HandleOne is Handle reduced to the last frame produced
func (s *Session) HandleOne(ev input.RawEvent) (protocol.Message, bool) {
	msgs := s.Handle(ev)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

// Handle feeds one raw event and returns the frames to send, in order
func (s *Session) Handle(ev input.RawEvent) []protocol.Message {
	if s.closed {
		return nil
	}
	switch ev.Kind {
	case input.KindKey:
		if int(ev.Code) >= keysync.Size {
			return nil
		}
		return s.handleKey(ev.Code, ev.Value)
	case input.KindRel:
		return s.handleRel(ev.Code, ev.Value)
	}
	return nil
}

func (s *Session) handleKey(code evdev.EvCode, value int32) []protocol.Message {
	if code == s.opts.Hotkey {
		if value != input.KeyDown {
			return nil
		}
		if s.hotkey.Press() {
			s.requestExit("hotkey pressed repeatedly")
			return nil
		}
		return s.Toggle()
	}

	if s.state == Local {
		return s.handleLocalKey(code, value)
	}

	if s.localKeys.Has(code) {
		// pressed before the grab; only the local OS ever saw the press,
		// so its repeats and release stay local too
		if value == input.KeyUp {
			s.releaseLocal([]evdev.EvCode{code})
			s.localKeys.Remove(code)
		}
		return nil
	}

	if s.opts.EscapeReleases && code == evdev.KEY_ESC && value == input.KeyDown {
		return s.SwitchTo(Local)
	}

	if button, ok := keymap.MouseButton(code); ok {
		if value == input.KeyRepeat {
			return nil
		}
		pressed := value == input.KeyDown
		msgs := s.flushMotion()
		if pressed {
			s.buttons |= hid.ButtonBit(button)
		} else {
			s.buttons &^= hid.ButtonBit(button)
		}
		return append(msgs, protocol.MouseButton{Button: button, Pressed: pressed})
	}

	msgs := s.flushMotion()
	ghosted := s.builder.Ghosted()
	if report, changed := s.builder.ProcessKey(code, value != input.KeyUp); changed {
		msgs = append(msgs, protocol.KeyboardReport{Report: report})
	} else if s.builder.Ghosted() > ghosted {
		logger.Debugf("Key %s dropped, report full", keymap.Name(code))
	}
	return msgs
}

func (s *Session) handleLocalKey(code evdev.EvCode, value int32) []protocol.Message {
	switch value {
	case input.KeyDown:
		s.localKeys.Add(code)
		if s.opts.ExitOnCtrlC && code == evdev.KEY_C &&
			(s.localKeys.Has(evdev.KEY_LEFTCTRL) || s.localKeys.Has(evdev.KEY_RIGHTCTRL)) {
			s.requestExit("ctrl+c")
		}
	case input.KeyUp:
		s.localKeys.Remove(code)
	}
	return nil
}

func (s *Session) handleRel(code evdev.EvCode, value int32) []protocol.Message {
	switch code {
	case evdev.REL_X, evdev.REL_Y:
	case evdev.REL_WHEEL, evdev.REL_HWHEEL:
		if s.state == Local {
			return nil
		}
		return s.handleWheel(code, value)
	default:
		return nil
	}

	dx, dy := 0, 0
	if code == evdev.REL_X {
		dx = int(value)
	} else {
		dy = int(value)
	}
	s.edges.Update(dx, dy)

	if s.state == Local {
		if !s.opts.EdgeTrigger {
			return nil
		}
		edge := s.edges.Check()
		if edge == input.EdgeNone || (s.opts.TargetEdge != input.EdgeNone && edge != s.opts.TargetEdge) {
			return nil
		}
		logger.Debugf("Cursor reached %s edge", edge)
		return s.SwitchTo(Remote)
	}

	var msgs []protocol.Message
	if code == evdev.REL_X {
		s.motion.Add(motion.AxisX, int64(value))
	} else {
		s.motion.Add(motion.AxisY, int64(value))
	}
	burst := s.hasLast && s.lastRel == code
	s.lastRel, s.hasLast = code, true
	if burst || (s.motion.Pending(motion.AxisX) != 0 && s.motion.Pending(motion.AxisY) != 0) {
		msgs = s.emitMotion()
	}

	if s.opts.EdgeTrigger && s.edges.Check() != input.EdgeNone {
		msgs = append(msgs, s.SwitchTo(Local)...)
	}
	return msgs
}

func (s *Session) handleWheel(code evdev.EvCode, value int32) []protocol.Message {
	msgs := s.flushMotion()
	if code == evdev.REL_WHEEL {
		s.motion.Add(motion.AxisWheel, int64(value))
	} else {
		s.motion.Add(motion.AxisHWheel, int64(value))
	}
	for s.motion.HasWheel() {
		v, _ := s.motion.Take(motion.AxisWheel, motion.WireLimit)
		h, _ := s.motion.Take(motion.AxisHWheel, motion.WireLimit)
		msgs = append(msgs, protocol.MouseWheel{Vertical: int16(v), Horizontal: int16(h)})
	}
	return msgs
}

// Flush emits any pending motion. The controller calls it when input goes idle.
func (s *Session) Flush() []protocol.Message {
	if s.state != Remote || s.closed {
		return nil
	}
	return s.flushMotion()
}

// HasPendingMotion reports motion waiting for a flush
func (s *Session) HasPendingMotion() bool {
	return s.motion.HasMotion()
}

func (s *Session) flushMotion() []protocol.Message {
	s.hasLast = false
	if !s.motion.HasMotion() {
		return nil
	}
	return s.emitMotion()
}

func (s *Session) emitMotion() []protocol.Message {
	var msgs []protocol.Message
	for s.motion.HasMotion() {
		dx, _ := s.motion.Take(motion.AxisX, motion.WireLimit)
		dy, _ := s.motion.Take(motion.AxisY, motion.WireLimit)
		msgs = append(msgs, protocol.MouseMove{DX: int16(dx), DY: int16(dy)})
	}
	return msgs
}

// Toggle flips between LOCAL and REMOTE
func (s *Session) Toggle() []protocol.Message {
	if s.state == Local {
		return s.SwitchTo(Remote)
	}
	return s.SwitchTo(Local)
}

// SwitchTo moves to the given state. The returned frames end with SWITCH and
// carry every resync report the target needs before it.
func (s *Session) SwitchTo(state ControlState) []protocol.Message {
	if s.closed || s.state == state {
		return nil
	}
	if state == Remote {
		return s.enterRemote()
	}
	return s.enterLocal()
}

func (s *Session) enterRemote() []protocol.Message {
	hw, hwOK := s.snapshot()

	if err := s.grabber.SetGrab(true); err != nil {
		logger.Errorf("Failed to grab input devices: %v", err)
	}

	if hwOK {
		s.resyncLocal(hw)
	}
	msgs := s.resyncTarget(hw, hwOK)

	s.state = Remote
	s.edges.EnterRemote()
	s.motion.Reset()
	s.hasLast = false

	logger.Info("Control switched to REMOTE")
	return append(msgs, protocol.Switch{Remote: true})
}

func (s *Session) enterLocal() []protocol.Message {
	msgs := s.flushMotion()
	hw, hwOK := s.snapshot()

	if err := s.grabber.SetGrab(false); err != nil {
		logger.Errorf("Failed to release input devices: %v", err)
	}

	msgs = append(msgs, s.resyncTarget(hw, hwOK)...)
	if !s.builder.Report().Empty() {
		s.builder.Reset()
		msgs = append(msgs, protocol.KeyboardReport{})
	}
	msgs = append(msgs, s.releaseButtons()...)

	if hwOK {
		s.resyncLocal(hw)
	}

	s.state = Local
	s.edges.EnterLocal()
	s.motion.Reset()

	logger.Info("Control switched to LOCAL")
	return append(msgs, protocol.Switch{Remote: false})
}

// Shutdown returns control to LOCAL and guarantees the devices are released and
// the report is empty. Safe to call more than once.
func (s *Session) Shutdown() []protocol.Message {
	if s.closed {
		return nil
	}
	var msgs []protocol.Message
	if s.state == Remote {
		msgs = s.enterLocal()
	}
	s.closed = true

	if err := s.grabber.SetGrab(false); err != nil {
		logger.Warnf("Ungrab on shutdown: %v", err)
	}
	s.builder.Reset()
	s.motion.Reset()
	s.buttons = 0
	return msgs
}

func (s *Session) snapshot() (keysync.KeySet, bool) {
	hw, err := s.grabber.KeyState()
	if err != nil {
		logger.Warnf("Cannot read key state, skipping resync: %v", err)
		return keysync.KeySet{}, false
	}
	return hw, true
}

func (s *Session) resyncTarget(hw keysync.KeySet, ok bool) []protocol.Message {
	if !ok {
		return nil
	}
	releases := keysync.Resync(hw, keysync.Downstream(&s.builder))
	if len(releases) == 0 {
		return nil
	}
	logger.Debugf("Releasing %d stale keys on target", len(releases))
	if report, changed := keysync.Apply(&s.builder, releases); changed {
		return []protocol.Message{protocol.KeyboardReport{Report: report}}
	}
	return nil
}

func (s *Session) resyncLocal(hw keysync.KeySet) {
	if !s.opts.LocalResync {
		return
	}
	releases := keysync.Resync(hw, s.localKeys)
	if len(releases) == 0 {
		return
	}
	codes := make([]evdev.EvCode, len(releases))
	for i, r := range releases {
		codes[i] = r.Code
	}
	s.releaseLocal(codes)
	keysync.Forget(&s.localKeys, releases)
}

func (s *Session) releaseLocal(codes []evdev.EvCode) {
	if s.local == nil || !s.opts.LocalResync {
		return
	}
	if err := s.local.ReleaseKeys(codes); err != nil {
		logger.Warnf("Failed to release local keys: %v", err)
	}
}

func (s *Session) releaseButtons() []protocol.Message {
	var msgs []protocol.Message
	for _, b := range []uint8{keymap.ButtonLeft, keymap.ButtonRight, keymap.ButtonMiddle} {
		if s.buttons&hid.ButtonBit(b) != 0 {
			msgs = append(msgs, protocol.MouseButton{Button: b, Pressed: false})
		}
	}
	s.buttons = 0
	return msgs
}

func (s *Session) requestExit(reason string) {
	if s.exitRequested {
		return
	}
	s.exitRequested = true
	s.exitReason = reason
	logger.Warnf("Exit requested: %s", reason)
}
