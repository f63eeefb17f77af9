// Package input captures local evdev devices, tracks the virtual cursor and injects input via uinput
package input

import (
	"errors"

	"github.com/bnema/onekm/internal/hid"
)

var (
	// ErrInjectorClosed is returned when operating on a closed injector
	ErrInjectorClosed = errors.New("injector is closed")
	// ErrDeviceUnavailable is returned when a capture or injection device cannot be opened or grabbed
	ErrDeviceUnavailable = errors.New("device unavailable")
)

// Injector synthesizes input on the target host
type Injector interface {
	InjectMotion(dx, dy int32) error
	InjectButton(button uint8, pressed bool) error
	InjectWheel(vertical, horizontal int32) error
	InjectReport(report hid.KeyboardReport) error
	// ReleaseAll lifts every key and button the injector holds
	ReleaseAll() error
	Close() error
}

// NewInjector creates the uinput backed injector
func NewInjector(name string) (Injector, error) {
	return NewUinputInjector(name)
}
