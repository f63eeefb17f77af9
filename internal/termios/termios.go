// Package termios keeps keystrokes typed into the controller's own terminal from echoing
// while the controller runs headless.
package termios

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNotTerminal is returned when the file is not a TTY
var ErrNotTerminal = errors.New("not a terminal")

// State holds the original terminal attributes
type State struct {
	fd       int
	original unix.Termios
	once     sync.Once
}

// IsTerminal reports whether f is a TTY
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// DisableEcho clears ECHO and ICANON on f while keeping ISIG, so Ctrl+C still
// raises SIGINT. Call Restore on the returned state before exiting.
func DisableEcho(f *os.File) (*State, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	tios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("failed to read terminal attributes: %w", err)
	}

	st := &State{fd: fd, original: *tios}

	raw := *tios
	raw.Lflag = Quiet(raw.Lflag)
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, fmt.Errorf("failed to set terminal attributes: %w", err)
	}
	return st, nil
}

// Quiet returns lflag with echo and canonical mode off and signals on
func Quiet(lflag uint32) uint32 {
	lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON
	lflag |= unix.ISIG
	return lflag
}

// Restore puts the original attributes back. Safe to call more than once.
func (s *State) Restore() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		// drop anything typed while echo was off
		_ = unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH)
		if e := unix.IoctlSetTermios(s.fd, unix.TCSETS, &s.original); e != nil {
			err = fmt.Errorf("failed to restore terminal: %w", e)
		}
	})
	return err
}
