package client

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/onekm/internal/logger"
)

// DefaultClientTriggerFile releases all injected input when it appears
const DefaultClientTriggerFile = "/tmp/onekm-client-release"

type linkWatcher interface {
	IsConnected() bool
}

// EmergencyRelease lifts every injected key and button on the target when the
// controller goes quiet, on SIGUSR1, or when the trigger file shows up.
// A silent link fires once; the next frame re-arms it.
type EmergencyRelease struct {
	link        linkWatcher
	timeout     time.Duration
	interval    time.Duration
	triggerFile string
	now         func() time.Time
	release     func(reason string)

	mu           sync.Mutex
	lastActivity time.Time
	fired        bool
}

// NewEmergencyRelease watches link and calls release when one of the triggers fires
func NewEmergencyRelease(link linkWatcher, timeout time.Duration, release func(reason string)) *EmergencyRelease {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	er := &EmergencyRelease{
		link:        link,
		timeout:     timeout,
		interval:    time.Second,
		triggerFile: DefaultClientTriggerFile,
		now:         time.Now,
		release:     release,
	}
	er.lastActivity = er.now()
	return er
}

// Start runs the watchers until ctx ends
func (er *EmergencyRelease) Start(ctx context.Context) {
	go er.watchSignal(ctx)
	go er.poll(ctx)
	logger.Debugf("[CLIENT EMERGENCY] armed: timeout %v, file %s, SIGUSR1", er.timeout, er.triggerFile)
}

// UpdateActivity records a frame from the controller
func (er *EmergencyRelease) UpdateActivity() {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.lastActivity = er.now()
	er.fired = false
}

func (er *EmergencyRelease) watchSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			er.fire("signal")
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) poll(ctx context.Context) {
	ticker := time.NewTicker(er.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			er.checkFile()
			er.checkIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) checkFile() {
	if _, err := os.Stat(er.triggerFile); err != nil {
		return
	}
	if err := os.Remove(er.triggerFile); err != nil {
		logger.Warnf("[CLIENT EMERGENCY] Could not remove %s: %v", er.triggerFile, err)
	}
	er.fire("file")
}

// checkIdle fires once per silent period, and only while a controller is connected
func (er *EmergencyRelease) checkIdle() {
	if !er.link.IsConnected() {
		return
	}

	er.mu.Lock()
	idle := er.now().Sub(er.lastActivity)
	expired := !er.fired && idle > er.timeout
	if expired {
		er.fired = true
	}
	er.mu.Unlock()

	if expired {
		logger.Warnf("[CLIENT EMERGENCY] No frames for %v", idle.Truncate(time.Second))
		er.fire("timeout")
	}
}

func (er *EmergencyRelease) fire(reason string) {
	logger.Warnf("[CLIENT EMERGENCY] Releasing injected input (reason: %s)", reason)
	if er.release != nil {
		er.release(reason)
	}
}
