// Package protocol implements the fixed 9-byte frame exchanged between controller and target.
package protocol

import (
	"fmt"

	"github.com/bnema/onekm/internal/hid"
)

// FrameSize is the length of every frame: one type byte and an 8-byte payload
const FrameSize = 9

// Type is the frame tag
type Type uint8

const (
	TypeMouseMove      Type = 0x01
	TypeMouseButton    Type = 0x02
	TypeKeyboardReport Type = 0x03
	TypeSwitch         Type = 0x04
	TypeMouseWheel     Type = 0x05
)

func (t Type) String() string {
	switch t {
	case TypeMouseMove:
		return "MOUSE_MOVE"
	case TypeMouseButton:
		return "MOUSE_BUTTON"
	case TypeKeyboardReport:
		return "KEYBOARD_REPORT"
	case TypeSwitch:
		return "SWITCH"
	case TypeMouseWheel:
		return "MOUSE_WHEEL"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Message is one decoded frame. The set of implementations is closed.
type Message interface {
	Type() Type
	put(payload []byte)
}

// MouseMove carries relative pointer motion
type MouseMove struct {
	DX, DY int16
}

// MouseButton carries a button transition; Button is 1=left, 2=right, 3=middle
type MouseButton struct {
	Button  uint8
	Pressed bool
}

// KeyboardReport carries the full keyboard state
type KeyboardReport struct {
	Report hid.KeyboardReport
}

// Switch announces a control transition
type Switch struct {
	Remote bool
}

// MouseWheel carries wheel detents
type MouseWheel struct {
	Vertical, Horizontal int16
}

func (MouseMove) Type() Type      { return TypeMouseMove }
func (MouseButton) Type() Type    { return TypeMouseButton }
func (KeyboardReport) Type() Type { return TypeKeyboardReport }
func (Switch) Type() Type         { return TypeSwitch }
func (MouseWheel) Type() Type     { return TypeMouseWheel }

func (m MouseMove) String() string { return fmt.Sprintf("MOUSE_MOVE(%d,%d)", m.DX, m.DY) }

func (m MouseButton) String() string {
	return fmt.Sprintf("MOUSE_BUTTON(%d,%t)", m.Button, m.Pressed)
}

func (m KeyboardReport) String() string { return "KEYBOARD_REPORT(" + m.Report.String() + ")" }

func (m Switch) String() string {
	if m.Remote {
		return "SWITCH(remote)"
	}
	return "SWITCH(local)"
}

func (m MouseWheel) String() string {
	return fmt.Sprintf("MOUSE_WHEEL(%d,%d)", m.Vertical, m.Horizontal)
}

// IsMotion reports whether a frame only carries relative motion and may be dropped under pressure
func IsMotion(m Message) bool {
	_, ok := m.(MouseMove)
	return ok
}
