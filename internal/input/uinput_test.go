package input

import (
	"errors"
	"os"
	"testing"

	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/keymap"
	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffReports(t *testing.T) {
	prev := hid.KeyboardReport{Modifiers: keymap.ModLeftShift, Keys: [hid.MaxKeys]uint8{0x04, 0x05}}
	next := hid.KeyboardReport{Modifiers: keymap.ModLeftCtrl, Keys: [hid.MaxKeys]uint8{0x05, 0x06}}

	up, down := DiffReports(prev, next)
	assert.Equal(t, []evdev.EvCode{evdev.KEY_LEFTSHIFT, evdev.KEY_A}, up)
	assert.Equal(t, []evdev.EvCode{evdev.KEY_LEFTCTRL, evdev.KEY_C}, down)

	up, down = DiffReports(next, next)
	assert.Empty(t, up)
	assert.Empty(t, down)

	up, _ = DiffReports(next, hid.KeyboardReport{})
	assert.ElementsMatch(t, []evdev.EvCode{evdev.KEY_LEFTCTRL, evdev.KEY_B, evdev.KEY_C}, up)
}

// TestUinputInjector_Integration performs real uinput calls when permissions allow
func TestUinputInjector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat("/dev/uinput"); os.IsNotExist(err) {
		t.Skip("/dev/uinput does not exist - uinput module not loaded")
	}

	inj, err := NewUinputInjector("onekm test")
	if err != nil {
		t.Skipf("Cannot create uinput devices: %v", err)
	}

	require.NoError(t, inj.InjectMotion(1, -1))
	require.NoError(t, inj.InjectButton(keymap.ButtonRight, true))
	require.NoError(t, inj.InjectReport(hid.KeyboardReport{Modifiers: keymap.ModLeftShift}))
	require.NoError(t, inj.ReleaseAll())
	assert.Error(t, inj.InjectButton(9, true))

	require.NoError(t, inj.Close())
	assert.True(t, errors.Is(inj.InjectMotion(1, 1), ErrInjectorClosed))
	assert.NoError(t, inj.Close(), "second close is a no-op")
}
