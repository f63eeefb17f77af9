package input

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/keymap"
	"github.com/holoplot/go-evdev"
)

// VirtualKeyboard is a uinput keyboard used to lift keys on the local host
type VirtualKeyboard struct {
	mu       sync.Mutex
	keyboard uinput.Keyboard
	closed   bool
}

// NewVirtualKeyboard creates a uinput keyboard device
func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	keyboard, err := uinput.CreateKeyboard("/dev/uinput", []byte(name+" Keyboard"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create virtual keyboard: %v", ErrDeviceUnavailable, err)
	}
	return &VirtualKeyboard{keyboard: keyboard}, nil
}

// ReleaseKeys sends key-up for each code
func (k *VirtualKeyboard) ReleaseKeys(codes []evdev.EvCode) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrInjectorClosed
	}
	var errs []error
	for _, code := range codes {
		if err := k.keyboard.KeyUp(int(code)); err != nil {
			errs = append(errs, fmt.Errorf("key %s: %w", keymap.Name(code), err))
		}
	}
	return errors.Join(errs...)
}

// Close destroys the device
func (k *VirtualKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.keyboard.Close()
}

// UinputInjector implements Injector with a virtual mouse and keyboard
type UinputInjector struct {
	mu       sync.Mutex
	mouse    uinput.Mouse
	keyboard uinput.Keyboard
	closed   bool

	report  hid.KeyboardReport
	buttons uint8
}

// NewUinputInjector creates the virtual devices
func NewUinputInjector(name string) (*UinputInjector, error) {
	mouse, err := uinput.CreateMouse("/dev/uinput", []byte(name+" Mouse"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create virtual mouse: %v", ErrDeviceUnavailable, err)
	}

	keyboard, err := uinput.CreateKeyboard("/dev/uinput", []byte(name+" Keyboard"))
	if err != nil {
		_ = mouse.Close()
		return nil, fmt.Errorf("%w: failed to create virtual keyboard: %v", ErrDeviceUnavailable, err)
	}

	return &UinputInjector{mouse: mouse, keyboard: keyboard}, nil
}

// InjectMotion moves the pointer
func (h *UinputInjector) InjectMotion(dx, dy int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInjectorClosed
	}
	if dx == 0 && dy == 0 {
		return nil
	}
	return h.mouse.Move(dx, dy)
}

// InjectButton presses or releases a wire button (1=left, 2=right, 3=middle)
func (h *UinputInjector) InjectButton(button uint8, pressed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInjectorClosed
	}
	return h.button(button, pressed)
}

func (h *UinputInjector) button(button uint8, pressed bool) error {
	bit := hid.ButtonBit(button)
	if bit == 0 {
		return fmt.Errorf("unknown mouse button %d", button)
	}

	var err error
	switch {
	case button == keymap.ButtonLeft && pressed:
		err = h.mouse.LeftPress()
	case button == keymap.ButtonLeft:
		err = h.mouse.LeftRelease()
	case button == keymap.ButtonRight && pressed:
		err = h.mouse.RightPress()
	case button == keymap.ButtonRight:
		err = h.mouse.RightRelease()
	case pressed:
		err = h.mouse.MiddlePress()
	default:
		err = h.mouse.MiddleRelease()
	}
	if err != nil {
		return err
	}

	if pressed {
		h.buttons |= bit
	} else {
		h.buttons &^= bit
	}
	return nil
}

// InjectWheel scrolls both wheels
func (h *UinputInjector) InjectWheel(vertical, horizontal int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInjectorClosed
	}
	if vertical != 0 {
		if err := h.mouse.Wheel(false, vertical); err != nil {
			return err
		}
	}
	if horizontal != 0 {
		if err := h.mouse.Wheel(true, horizontal); err != nil {
			return err
		}
	}
	return nil
}

// InjectReport applies a full keyboard report by diffing it against the previous one
func (h *UinputInjector) InjectReport(report hid.KeyboardReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInjectorClosed
	}
	return h.apply(report)
}

func (h *UinputInjector) apply(report hid.KeyboardReport) error {
	up, down := DiffReports(h.report, report)
	h.report = report

	var errs []error
	for _, code := range up {
		if err := h.keyboard.KeyUp(int(code)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, code := range down {
		if err := h.keyboard.KeyDown(int(code)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReleaseAll lifts every key and mouse button
func (h *UinputInjector) ReleaseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInjectorClosed
	}

	errs := []error{h.apply(hid.KeyboardReport{})}
	for _, b := range []uint8{keymap.ButtonLeft, keymap.ButtonRight, keymap.ButtonMiddle} {
		if h.buttons&hid.ButtonBit(b) != 0 {
			errs = append(errs, h.button(b, false))
		}
	}
	return errors.Join(errs...)
}

// Close releases held input and destroys the devices
func (h *UinputInjector) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	_ = h.apply(hid.KeyboardReport{})
	h.closed = true

	var err error
	if h.mouse != nil {
		err = h.mouse.Close()
	}
	if h.keyboard != nil {
		if e := h.keyboard.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// DiffReports returns the key codes released and pressed going from prev to next
func DiffReports(prev, next hid.KeyboardReport) (up, down []evdev.EvCode) {
	prevCodes := prev.Codes()
	nextCodes := next.Codes()

	for _, c := range prevCodes {
		if !slices.Contains(nextCodes, c) {
			up = append(up, c)
		}
	}
	for _, c := range nextCodes {
		if !slices.Contains(prevCodes, c) {
			down = append(down, c)
		}
	}
	return up, down
}
