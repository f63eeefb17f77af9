package hid

import (
	"github.com/bnema/onekm/internal/keymap"
	"github.com/holoplot/go-evdev"
)

// ReportBuilder holds the authoritative pressed-key state for one keyboard stream.
// Not safe for concurrent use.
type ReportBuilder struct {
	report KeyboardReport
	ghosts int
}

// ProcessKey applies a press or release and returns the new report when the state changed.
// Keys with no HID usage are ignored. A press with all slots taken is dropped.
func (b *ReportBuilder) ProcessKey(code evdev.EvCode, pressed bool) (KeyboardReport, bool) {
	if bit, ok := keymap.ModifierBit(code); ok {
		if pressed {
			b.report.Modifiers |= bit
		} else {
			b.report.Modifiers &^= bit
		}
		return b.report, true
	}

	usage, ok := keymap.ToHID(code)
	if !ok {
		return KeyboardReport{}, false
	}

	if pressed {
		return b.press(usage)
	}
	return b.release(usage)
}

func (b *ReportBuilder) press(usage uint8) (KeyboardReport, bool) {
	if b.report.Contains(usage) {
		return KeyboardReport{}, false
	}
	for i, k := range b.report.Keys {
		if k == 0 {
			b.report.Keys[i] = usage
			return b.report, true
		}
	}
	// rollover limit of the boot report
	b.ghosts++
	return KeyboardReport{}, false
}

func (b *ReportBuilder) release(usage uint8) (KeyboardReport, bool) {
	idx := -1
	for i, k := range b.report.Keys {
		if k == usage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return KeyboardReport{}, false
	}
	copy(b.report.Keys[idx:], b.report.Keys[idx+1:])
	b.report.Keys[MaxKeys-1] = 0
	return b.report, true
}

// Report returns the current snapshot
func (b *ReportBuilder) Report() KeyboardReport {
	return b.report
}

// Pressed returns the key codes the receiving side currently sees held
func (b *ReportBuilder) Pressed() []evdev.EvCode {
	return b.report.Codes()
}

// Ghosted returns how many presses were dropped because the report was full
func (b *ReportBuilder) Ghosted() int {
	return b.ghosts
}

// Reset clears all keys and modifiers
func (b *ReportBuilder) Reset() {
	b.report = KeyboardReport{}
}
