package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/onekm/internal/logger"
)

// DefaultTriggerFile forces the controller back to LOCAL when it appears
const DefaultTriggerFile = "/tmp/onekm-release"

type localForcer interface {
	ForceLocal(reason string) error
}

// EmergencyRelease gives the user a way back to LOCAL when the hotkey is unreachable
type EmergencyRelease struct {
	controller   localForcer
	triggerFile  string
	pollInterval time.Duration
}

// NewEmergencyRelease creates a new emergency release handler
func NewEmergencyRelease(controller localForcer) *EmergencyRelease {
	return &EmergencyRelease{
		controller:   controller,
		triggerFile:  DefaultTriggerFile,
		pollInterval: time.Second,
	}
}

// Start begins monitoring for emergency release conditions until ctx ends
func (er *EmergencyRelease) Start(ctx context.Context) {
	// 1. Signal handler for SIGUSR1
	go er.handleSignals(ctx)

	// 2. File-based trigger
	go er.monitorFileTrigger(ctx)

	logger.Info("[EMERGENCY] Emergency release mechanisms activated")
}

// handleSignals listens for SIGUSR1 to trigger emergency release
func (er *EmergencyRelease) handleSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			logger.Warn("[EMERGENCY] SIGUSR1 received - triggering emergency release")
			er.triggerRelease("signal")
		case <-ctx.Done():
			return
		}
	}
}

// monitorFileTrigger checks for presence of the trigger file
func (er *EmergencyRelease) monitorFileTrigger(ctx context.Context) {
	ticker := time.NewTicker(er.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(er.triggerFile); err == nil {
				logger.Warn("[EMERGENCY] Release file detected - triggering emergency release")
				_ = os.Remove(er.triggerFile)
				er.triggerRelease("file")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (er *EmergencyRelease) triggerRelease(reason string) {
	logger.Warnf("[EMERGENCY] Emergency release triggered (reason: %s)", reason)
	if err := er.controller.ForceLocal(reason); err != nil {
		logger.Errorf("[EMERGENCY] Failed to switch to local: %v", err)
	}
}
