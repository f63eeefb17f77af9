// Package client runs the target side: it receives frames from the controller
// and turns them into input on this host.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/onekm/internal/input"
	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/network"
	"github.com/bnema/onekm/internal/protocol"
)

// Sink consumes decoded frames
type Sink interface {
	Apply(m protocol.Message) error
	// ReleaseAll lifts everything the sink holds down
	ReleaseAll() error
}

// ControlStatus represents the current control status of the client
type ControlStatus struct {
	Connected       bool
	BeingControlled bool
	Controller      string
	ConnectedAt     time.Time
}

// InputReceiver manages receiving frames from the controller and applying them
type InputReceiver struct {
	mu             sync.RWMutex
	serverAddress  string
	sink           Sink
	conn           io.Closer
	status         ControlStatus
	onStatusChange func(ControlStatus)
	onActivity     func()

	backoff network.Backoff
	frames  atomic.Uint64
	skipped atomic.Uint64
}

// NewInputReceiver creates a receiver that feeds sink
func NewInputReceiver(serverAddress string, sink Sink, reconnectDelay time.Duration) *InputReceiver {
	return &InputReceiver{
		serverAddress: serverAddress,
		sink:          sink,
		backoff:       network.Backoff{Initial: reconnectDelay, Max: 60 * time.Second},
	}
}

// OnStatusChange sets a callback for control status changes
func (ir *InputReceiver) OnStatusChange(callback func(ControlStatus)) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	ir.onStatusChange = callback
}

// OnActivity sets a callback run for every applied frame
func (ir *InputReceiver) OnActivity(callback func()) {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	ir.onActivity = callback
}

// IsConnected returns whether a controller link is up
func (ir *InputReceiver) IsConnected() bool {
	ir.mu.RLock()
	defer ir.mu.RUnlock()
	return ir.status.Connected
}

// GetControlStatus returns the current control status
func (ir *InputReceiver) GetControlStatus() ControlStatus {
	ir.mu.RLock()
	defer ir.mu.RUnlock()
	return ir.status
}

// Stats returns frames applied and frames skipped as unknown
func (ir *InputReceiver) Stats() (applied, skipped uint64) {
	return ir.frames.Load(), ir.skipped.Load()
}

// Run dials the controller and serves frames until ctx ends, reconnecting with backoff
func (ir *InputReceiver) Run(ctx context.Context) error {
	for {
		conn, err := network.Dial(ctx, ir.serverAddress)
		if err == nil {
			ir.backoff.Reset()
			err = ir.Serve(ctx, conn, conn.RemoteAddr().String())
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := ir.backoff.Next()
		logger.Warnf("Link to %s lost (%v), retrying in %v", ir.serverAddress, err, delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Serve applies frames read from r until it fails or ctx ends. Whatever the
// sink holds is released when the link goes away.
func (ir *InputReceiver) Serve(ctx context.Context, r io.Reader, peer string) error {
	stop := context.AfterFunc(ctx, func() {
		if c, ok := r.(io.Closer); ok {
			_ = c.Close()
		}
	})
	defer stop()

	ir.setLink(r, peer)
	defer ir.dropLink()

	logger.Infof("Connected to controller %s", peer)
	fr := protocol.NewFrameReader(r)
	for {
		m, err := fr.Next()
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrUnknownType):
			ir.skipped.Add(1)
			logger.Debugf("Skipping frame: %v", err)
			continue
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			return io.EOF
		default:
			return fmt.Errorf("read frame: %w", err)
		}

		if err := ir.apply(m); err != nil {
			logger.Warnf("Failed to apply %v: %v", m, err)
		}
	}
}

func (ir *InputReceiver) apply(m protocol.Message) error {
	ir.frames.Add(1)

	ir.mu.Lock()
	onActivity := ir.onActivity
	var changed *ControlStatus
	if sw, ok := m.(protocol.Switch); ok && ir.status.BeingControlled != sw.Remote {
		ir.status.BeingControlled = sw.Remote
		st := ir.status
		changed = &st
	}
	onStatus := ir.onStatusChange
	ir.mu.Unlock()

	if onActivity != nil {
		onActivity()
	}
	if changed != nil {
		logger.Infof("Controller switched to %s", map[bool]string{true: "REMOTE", false: "LOCAL"}[changed.BeingControlled])
		if onStatus != nil {
			onStatus(*changed)
		}
	}
	return ir.sink.Apply(m)
}

func (ir *InputReceiver) setLink(r io.Reader, peer string) {
	ir.mu.Lock()
	if c, ok := r.(io.Closer); ok {
		ir.conn = c
	}
	ir.status = ControlStatus{Connected: true, Controller: peer, ConnectedAt: time.Now()}
	st, cb := ir.status, ir.onStatusChange
	ir.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

func (ir *InputReceiver) dropLink() {
	if err := ir.sink.ReleaseAll(); err != nil {
		logger.Errorf("Failed to release input after disconnect: %v", err)
	}

	ir.mu.Lock()
	ir.conn = nil
	ir.status = ControlStatus{}
	st, cb := ir.status, ir.onStatusChange
	ir.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

// Release drops the current link and lifts all held input. Run reconnects afterwards.
func (ir *InputReceiver) Release() error {
	ir.mu.Lock()
	conn := ir.conn
	ir.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return ir.sink.ReleaseAll()
}

// InjectorSink applies frames through an input.Injector
type InjectorSink struct {
	Injector input.Injector
}

// Apply implements Sink
func (s InjectorSink) Apply(m protocol.Message) error {
	switch m := m.(type) {
	case protocol.MouseMove:
		return s.Injector.InjectMotion(int32(m.DX), int32(m.DY))
	case protocol.MouseButton:
		return s.Injector.InjectButton(m.Button, m.Pressed)
	case protocol.MouseWheel:
		return s.Injector.InjectWheel(int32(m.Vertical), int32(m.Horizontal))
	case protocol.KeyboardReport:
		return s.Injector.InjectReport(m.Report)
	case protocol.Switch:
		if !m.Remote {
			return s.Injector.ReleaseAll()
		}
	}
	return nil
}

// ReleaseAll implements Sink
func (s InjectorSink) ReleaseAll() error {
	return s.Injector.ReleaseAll()
}
