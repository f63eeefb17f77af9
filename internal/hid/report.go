// Package hid models USB HID boot-protocol keyboard and mouse reports.
package hid

import (
	"fmt"
	"strings"

	"github.com/bnema/onekm/internal/keymap"
	"github.com/holoplot/go-evdev"
)

// MaxKeys is the number of non-modifier slots in a boot keyboard report
const MaxKeys = 6

// KeyboardReport is the 8-byte boot keyboard report minus the reserved byte
type KeyboardReport struct {
	Modifiers uint8
	Keys      [MaxKeys]uint8
}

// Bytes returns the on-wire boot report: modifiers, reserved, six key slots
func (r KeyboardReport) Bytes() [8]byte {
	var b [8]byte
	b[0] = r.Modifiers
	copy(b[2:], r.Keys[:])
	return b
}

// Contains reports whether usage occupies a key slot
func (r KeyboardReport) Contains(usage uint8) bool {
	if usage == 0 {
		return false
	}
	for _, k := range r.Keys {
		if k == usage {
			return true
		}
	}
	return false
}

// Count returns the number of occupied key slots
func (r KeyboardReport) Count() int {
	n := 0
	for _, k := range r.Keys {
		if k != 0 {
			n++
		}
	}
	return n
}

// Empty reports whether no key or modifier is held
func (r KeyboardReport) Empty() bool {
	return r == KeyboardReport{}
}

// Codes expands the report into evdev key codes, modifiers first
func (r KeyboardReport) Codes() []evdev.EvCode {
	codes := keymap.ModifierCodes(r.Modifiers)
	for _, k := range r.Keys {
		if k == 0 {
			continue
		}
		if code, ok := keymap.FromHID(k); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func (r KeyboardReport) String() string {
	var keys []string
	for _, code := range r.Codes() {
		keys = append(keys, keymap.Name(code))
	}
	return fmt.Sprintf("mod=0x%02x keys=[%s]", r.Modifiers, strings.Join(keys, " "))
}

// MouseReport is a boot mouse report extended with vertical and horizontal wheel bytes
type MouseReport struct {
	Buttons uint8
	X, Y    int8
	Wheel   int8
	Pan     int8
}

// Button bits of MouseReport.Buttons
const (
	MouseLeft   uint8 = 1 << 0
	MouseRight  uint8 = 1 << 1
	MouseMiddle uint8 = 1 << 2
)

// ButtonBit converts a wire button number into its report bit
func ButtonBit(button uint8) uint8 {
	switch button {
	case keymap.ButtonLeft:
		return MouseLeft
	case keymap.ButtonRight:
		return MouseRight
	case keymap.ButtonMiddle:
		return MouseMiddle
	}
	return 0
}

// Bytes returns the 5-byte report layout
func (r MouseReport) Bytes() [5]byte {
	return [5]byte{r.Buttons, byte(r.X), byte(r.Y), byte(r.Wheel), byte(r.Pan)}
}
