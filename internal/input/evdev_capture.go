package input

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bnema/onekm/internal/keysync"
	"github.com/bnema/onekm/internal/logger"
	"github.com/holoplot/go-evdev"
)

// EvdevSource reads keyboards and mice through evdev and grabs them on demand
type EvdevSource struct {
	mu      sync.Mutex
	paths   []string
	devices map[string]*evdev.InputDevice
	grabbed bool
	closed  bool

	events chan RawEvent
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEvdevSource creates a source for the given device paths.
// An empty list means every keyboard and mouse found under /dev/input.
func NewEvdevSource(paths []string) *EvdevSource {
	return &EvdevSource{
		paths:   paths,
		devices: make(map[string]*evdev.InputDevice),
		events:  make(chan RawEvent, 1024),
	}
}

// FindDevices lists keyboards (can emit KEY_A) and pointers (can emit REL_X)
func FindDevices() ([]string, error) {
	candidates, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	var paths []string
	for _, c := range candidates {
		dev, err := evdev.Open(c.Path)
		if err != nil {
			logger.Debugf("Skipping %s: %v", c.Path, err)
			continue
		}
		keyboard := slices.Contains(dev.CapableEvents(evdev.EV_KEY), evdev.KEY_A)
		pointer := slices.Contains(dev.CapableEvents(evdev.EV_REL), evdev.REL_X)
		_ = dev.Close()

		if keyboard || pointer {
			logger.Debugf("Found input device %s (%s)", c.Path, c.Name)
			paths = append(paths, c.Path)
		}
	}
	return paths, nil
}

// Start opens the devices and begins reading. Failing to open any device is fatal.
func (s *EvdevSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("already capturing")
	}

	paths := s.paths
	if len(paths) == 0 {
		found, err := FindDevices()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		paths = found
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, path := range paths {
		dev, err := evdev.Open(path)
		if err != nil {
			logger.Warnf("Failed to open %s: %v", path, err)
			continue
		}
		name, _ := dev.Name()
		logger.Infof("Capturing %s (%s)", path, name)
		s.devices[path] = dev
		s.wg.Add(1)
		go s.readLoop(path, dev)
	}

	if len(s.devices) == 0 {
		s.cancel()
		return fmt.Errorf("%w: no keyboard or mouse could be opened", ErrDeviceUnavailable)
	}
	return nil
}

// Events returns the raw event stream. It is closed by Close.
func (s *EvdevSource) Events() <-chan RawEvent {
	return s.events
}

// SetGrab grabs or releases every open device. Devices that fail are reported
// but do not prevent the others from switching.
func (s *EvdevSource) SetGrab(grab bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grabbed = grab
	var errs []error
	for path, dev := range s.devices {
		var err error
		if grab {
			err = dev.Grab()
		} else {
			err = dev.Ungrab()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err))
		}
	}
	return errors.Join(errs...)
}

// Grabbed reports the last requested grab state
func (s *EvdevSource) Grabbed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grabbed
}

// KeyState returns the union of physically pressed keys across all devices
func (s *EvdevSource) KeyState() (keysync.KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var set keysync.KeySet
	var errs []error
	for path, dev := range s.devices {
		state, err := dev.State(evdev.EV_KEY)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		set = set.Union(keysync.FromState(state))
	}
	return set, errors.Join(errs...)
}

// Close ungrabs and closes every device, then closes the event channel
func (s *EvdevSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	for path, dev := range s.devices {
		if s.grabbed {
			_ = dev.Ungrab()
		}
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		delete(s.devices, path)
	}
	s.grabbed = false
	s.mu.Unlock()

	s.wg.Wait()
	close(s.events)
	return errors.Join(errs...)
}

func (s *EvdevSource) readLoop(path string, dev *evdev.InputDevice) {
	defer s.wg.Done()

	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.Warnf("Lost input device %s: %v", path, err)
			s.drop(path, dev)
			return
		}

		select {
		case s.events <- FromEvdev(ev):
		case <-s.ctx.Done():
			return
		}
	}
}

// drop forgets a failed device and starts reopening it in the background
func (s *EvdevSource) drop(path string, dev *evdev.InputDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices[path] == dev {
		delete(s.devices, path)
		_ = dev.Close()
	}
	if s.closed {
		return
	}
	s.wg.Add(1)
	go s.reopen(path)
}

func (s *EvdevSource) reopen(path string) {
	defer s.wg.Done()

	delay := time.Second
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		dev, err := evdev.Open(path)
		if err != nil {
			logger.Debugf("Reopen %s failed: %v", path, err)
			delay = min(delay*2, 30*time.Second)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = dev.Close()
			return
		}
		if s.grabbed {
			if err := dev.Grab(); err != nil {
				logger.Warnf("Failed to grab reopened device %s: %v", path, err)
			}
		}
		s.devices[path] = dev
		s.wg.Add(1)
		go s.readLoop(path, dev)
		s.mu.Unlock()

		logger.Infof("Input device %s is back", path)
		return
	}
}
