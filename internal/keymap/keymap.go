// Package keymap translates Linux evdev key codes to USB HID keyboard usages and back.
package keymap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holoplot/go-evdev"
)

// Modifier bits of the HID boot keyboard report
const (
	ModLeftCtrl uint8 = 1 << iota
	ModLeftShift
	ModLeftAlt
	ModLeftGUI
	ModRightCtrl
	ModRightShift
	ModRightAlt
	ModRightGUI
)

// Mouse buttons as carried on the wire
const (
	ButtonLeft   uint8 = 1
	ButtonRight  uint8 = 2
	ButtonMiddle uint8 = 3
)

var modifiers = map[evdev.EvCode]uint8{
	evdev.KEY_LEFTCTRL:   ModLeftCtrl,
	evdev.KEY_LEFTSHIFT:  ModLeftShift,
	evdev.KEY_LEFTALT:    ModLeftAlt,
	evdev.KEY_LEFTMETA:   ModLeftGUI,
	evdev.KEY_RIGHTCTRL:  ModRightCtrl,
	evdev.KEY_RIGHTSHIFT: ModRightShift,
	evdev.KEY_RIGHTALT:   ModRightAlt,
	evdev.KEY_RIGHTMETA:  ModRightGUI,
}

// HID usage page 0x07 (keyboard/keypad)
var usages = map[evdev.EvCode]uint8{
	evdev.KEY_A: 0x04, evdev.KEY_B: 0x05, evdev.KEY_C: 0x06, evdev.KEY_D: 0x07,
	evdev.KEY_E: 0x08, evdev.KEY_F: 0x09, evdev.KEY_G: 0x0A, evdev.KEY_H: 0x0B,
	evdev.KEY_I: 0x0C, evdev.KEY_J: 0x0D, evdev.KEY_K: 0x0E, evdev.KEY_L: 0x0F,
	evdev.KEY_M: 0x10, evdev.KEY_N: 0x11, evdev.KEY_O: 0x12, evdev.KEY_P: 0x13,
	evdev.KEY_Q: 0x14, evdev.KEY_R: 0x15, evdev.KEY_S: 0x16, evdev.KEY_T: 0x17,
	evdev.KEY_U: 0x18, evdev.KEY_V: 0x19, evdev.KEY_W: 0x1A, evdev.KEY_X: 0x1B,
	evdev.KEY_Y: 0x1C, evdev.KEY_Z: 0x1D,

	evdev.KEY_1: 0x1E, evdev.KEY_2: 0x1F, evdev.KEY_3: 0x20, evdev.KEY_4: 0x21,
	evdev.KEY_5: 0x22, evdev.KEY_6: 0x23, evdev.KEY_7: 0x24, evdev.KEY_8: 0x25,
	evdev.KEY_9: 0x26, evdev.KEY_0: 0x27,

	evdev.KEY_ENTER:      0x28,
	evdev.KEY_ESC:        0x29,
	evdev.KEY_BACKSPACE:  0x2A,
	evdev.KEY_TAB:        0x2B,
	evdev.KEY_SPACE:      0x2C,
	evdev.KEY_MINUS:      0x2D,
	evdev.KEY_EQUAL:      0x2E,
	evdev.KEY_LEFTBRACE:  0x2F,
	evdev.KEY_RIGHTBRACE: 0x30,
	evdev.KEY_BACKSLASH:  0x31,
	evdev.KEY_SEMICOLON:  0x33,
	evdev.KEY_APOSTROPHE: 0x34,
	evdev.KEY_GRAVE:      0x35,
	evdev.KEY_COMMA:      0x36,
	evdev.KEY_DOT:        0x37,
	evdev.KEY_SLASH:      0x38,
	evdev.KEY_CAPSLOCK:   0x39,

	evdev.KEY_F1: 0x3A, evdev.KEY_F2: 0x3B, evdev.KEY_F3: 0x3C, evdev.KEY_F4: 0x3D,
	evdev.KEY_F5: 0x3E, evdev.KEY_F6: 0x3F, evdev.KEY_F7: 0x40, evdev.KEY_F8: 0x41,
	evdev.KEY_F9: 0x42, evdev.KEY_F10: 0x43, evdev.KEY_F11: 0x44, evdev.KEY_F12: 0x45,

	evdev.KEY_SYSRQ:      0x46,
	evdev.KEY_SCROLLLOCK: 0x47,
	evdev.KEY_PAUSE:      0x48,
	evdev.KEY_INSERT:     0x49,
	evdev.KEY_HOME:       0x4A,
	evdev.KEY_PAGEUP:     0x4B,
	evdev.KEY_DELETE:     0x4C,
	evdev.KEY_END:        0x4D,
	evdev.KEY_PAGEDOWN:   0x4E,
	evdev.KEY_RIGHT:      0x4F,
	evdev.KEY_LEFT:       0x50,
	evdev.KEY_DOWN:       0x51,
	evdev.KEY_UP:         0x52,

	evdev.KEY_NUMLOCK:    0x53,
	evdev.KEY_KPSLASH:    0x54,
	evdev.KEY_KPASTERISK: 0x55,
	evdev.KEY_KPMINUS:    0x56,
	evdev.KEY_KPPLUS:     0x57,
	evdev.KEY_KPENTER:    0x58,
	evdev.KEY_KP1:        0x59,
	evdev.KEY_KP2:        0x5A,
	evdev.KEY_KP3:        0x5B,
	evdev.KEY_KP4:        0x5C,
	evdev.KEY_KP5:        0x5D,
	evdev.KEY_KP6:        0x5E,
	evdev.KEY_KP7:        0x5F,
	evdev.KEY_KP8:        0x60,
	evdev.KEY_KP9:        0x61,
	evdev.KEY_KP0:        0x62,
	evdev.KEY_KPDOT:      0x63,
	evdev.KEY_102ND:      0x64,
	evdev.KEY_COMPOSE:    0x65,
	evdev.KEY_POWER:      0x66,
	evdev.KEY_KPEQUAL:    0x67,

	evdev.KEY_F13: 0x68, evdev.KEY_F14: 0x69, evdev.KEY_F15: 0x6A, evdev.KEY_F16: 0x6B,
	evdev.KEY_F17: 0x6C, evdev.KEY_F18: 0x6D, evdev.KEY_F19: 0x6E, evdev.KEY_F20: 0x6F,
	evdev.KEY_F21: 0x70, evdev.KEY_F22: 0x71, evdev.KEY_F23: 0x72, evdev.KEY_F24: 0x73,

	evdev.KEY_MUTE:       0x7F,
	evdev.KEY_VOLUMEUP:   0x80,
	evdev.KEY_VOLUMEDOWN: 0x81,
	evdev.KEY_KPCOMMA:    0x85,

	evdev.KEY_RO:               0x87,
	evdev.KEY_KATAKANAHIRAGANA: 0x88,
	evdev.KEY_YEN:              0x89,
	evdev.KEY_HENKAN:           0x8A,
	evdev.KEY_MUHENKAN:         0x8B,
	evdev.KEY_HANGEUL:          0x90,
	evdev.KEY_HANJA:            0x91,
}

var (
	codes       map[uint8]evdev.EvCode
	modifierFor [8]evdev.EvCode
)

func init() {
	codes = make(map[uint8]evdev.EvCode, len(usages))
	for code, usage := range usages {
		codes[usage] = code
	}
	for code, bit := range modifiers {
		for i := 0; i < 8; i++ {
			if bit == 1<<i {
				modifierFor[i] = code
			}
		}
	}
}

// ToHID returns the HID usage for a non-modifier key code
func ToHID(code evdev.EvCode) (uint8, bool) {
	usage, ok := usages[code]
	return usage, ok
}

// FromHID returns the key code for a HID usage
func FromHID(usage uint8) (evdev.EvCode, bool) {
	code, ok := codes[usage]
	return code, ok
}

// ModifierBit returns the report modifier bit for a modifier key code
func ModifierBit(code evdev.EvCode) (uint8, bool) {
	bit, ok := modifiers[code]
	return bit, ok
}

// ModifierCodes expands a modifier bitmask into key codes, lowest bit first
func ModifierCodes(mask uint8) []evdev.EvCode {
	var out []evdev.EvCode
	for i := 0; i < 8; i++ {
		if mask&(1<<i) != 0 {
			out = append(out, modifierFor[i])
		}
	}
	return out
}

// IsKey reports whether code can be carried in a keyboard report
func IsKey(code evdev.EvCode) bool {
	if _, ok := modifiers[code]; ok {
		return true
	}
	_, ok := usages[code]
	return ok
}

// MouseButton maps BTN_LEFT/RIGHT/MIDDLE to the wire button number
func MouseButton(code evdev.EvCode) (uint8, bool) {
	switch code {
	case evdev.BTN_LEFT:
		return ButtonLeft, true
	case evdev.BTN_RIGHT:
		return ButtonRight, true
	case evdev.BTN_MIDDLE:
		return ButtonMiddle, true
	}
	return 0, false
}

// Lookup resolves a key name such as "F12", "key_f12" or "88" to a key code
func Lookup(name string) (evdev.EvCode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty key name")
	}
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 || n > int(evdev.KEY_MAX) {
			return 0, fmt.Errorf("key code %d out of range", n)
		}
		return evdev.EvCode(n), nil
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "KEY_") {
		upper = "KEY_" + upper
	}
	code, ok := evdev.KEYFromString[upper]
	if !ok {
		return 0, fmt.Errorf("unknown key %q", name)
	}
	return code, nil
}

// Name returns a short display name for a key code
func Name(code evdev.EvCode) string {
	if s, ok := evdev.KEYToString[code]; ok {
		return strings.TrimPrefix(s, "KEY_")
	}
	return fmt.Sprintf("%d", code)
}
