package client

import (
	"errors"
	"fmt"
	"os"
)

// Gadget writes reports to USB HID gadget function devices such as /dev/hidg0
type Gadget struct {
	keyboard *os.File
	mouse    *os.File
}

// OpenGadget opens the keyboard and mouse report devices
func OpenGadget(keyboardPath, mousePath string) (*Gadget, error) {
	kbd, err := os.OpenFile(keyboardPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyboard gadget %s: %w", keyboardPath, err)
	}
	mouse, err := os.OpenFile(mousePath, os.O_WRONLY, 0)
	if err != nil {
		_ = kbd.Close()
		return nil, fmt.Errorf("failed to open mouse gadget %s: %w", mousePath, err)
	}
	return &Gadget{keyboard: kbd, mouse: mouse}, nil
}

// WriteKeyboard implements ReportWriter
func (g *Gadget) WriteKeyboard(report [8]byte) error {
	_, err := g.keyboard.Write(report[:])
	return err
}

// WriteMouse implements ReportWriter
func (g *Gadget) WriteMouse(report [5]byte) error {
	_, err := g.mouse.Write(report[:])
	return err
}

// Close closes both devices
func (g *Gadget) Close() error {
	return errors.Join(g.keyboard.Close(), g.mouse.Close())
}
