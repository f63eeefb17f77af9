package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInjector struct {
	mu       sync.Mutex
	calls    []string
	report   hid.KeyboardReport
	releases int
}

func (m *mockInjector) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, s)
}

func (m *mockInjector) InjectMotion(dx, dy int32) error {
	m.record("move")
	return nil
}

func (m *mockInjector) InjectButton(button uint8, pressed bool) error {
	m.record("button")
	return nil
}

func (m *mockInjector) InjectWheel(vertical, horizontal int32) error {
	m.record("wheel")
	return nil
}

func (m *mockInjector) InjectReport(report hid.KeyboardReport) error {
	m.mu.Lock()
	m.report = report
	m.mu.Unlock()
	m.record("report")
	return nil
}

func (m *mockInjector) ReleaseAll() error {
	m.mu.Lock()
	m.releases++
	m.report = hid.KeyboardReport{}
	m.mu.Unlock()
	m.record("release")
	return nil
}

func (m *mockInjector) Close() error { return nil }

func (m *mockInjector) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func frames(msgs ...protocol.Message) []byte {
	var b []byte
	for _, m := range msgs {
		b = protocol.AppendFrame(b, m)
	}
	return b
}

func TestServeAppliesFrames(t *testing.T) {
	inj := &mockInjector{}
	ir := NewInputReceiver("unused", InjectorSink{Injector: inj}, time.Second)

	var statuses []ControlStatus
	ir.OnStatusChange(func(s ControlStatus) { statuses = append(statuses, s) })

	data := frames(
		protocol.Switch{Remote: true},
		protocol.MouseMove{DX: 3, DY: 4},
		protocol.MouseButton{Button: 1, Pressed: true},
		protocol.MouseWheel{Vertical: -1},
		protocol.KeyboardReport{Report: hid.KeyboardReport{Keys: [6]uint8{0x04}}},
		protocol.Switch{Remote: false},
	)

	err := ir.Serve(context.Background(), bytes.NewReader(data), "test")
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, []string{"move", "button", "wheel", "report", "release", "release"}, inj.snapshot())

	applied, skipped := ir.Stats()
	assert.Equal(t, uint64(6), applied)
	assert.Zero(t, skipped)

	require.Len(t, statuses, 4)
	assert.True(t, statuses[0].Connected)
	assert.True(t, statuses[1].BeingControlled)
	assert.False(t, statuses[2].BeingControlled)
	assert.False(t, statuses[3].Connected)
	assert.False(t, ir.IsConnected())
}

func TestServeSkipsUnknownFrames(t *testing.T) {
	inj := &mockInjector{}
	ir := NewInputReceiver("unused", InjectorSink{Injector: inj}, time.Second)

	bad := make([]byte, protocol.FrameSize)
	bad[0] = 0x7F
	data := append(bad, frames(protocol.MouseMove{DX: 1})...)

	err := ir.Serve(context.Background(), bytes.NewReader(data), "test")
	assert.ErrorIs(t, err, io.EOF)

	applied, skipped := ir.Stats()
	assert.Equal(t, uint64(1), applied)
	assert.Equal(t, uint64(1), skipped)
}

func TestServeTruncatedEndsLink(t *testing.T) {
	inj := &mockInjector{}
	ir := NewInputReceiver("unused", InjectorSink{Injector: inj}, time.Second)

	data := frames(protocol.KeyboardReport{Report: hid.KeyboardReport{Keys: [6]uint8{0x04}}})
	data = append(data, 0x01, 0x02)

	err := ir.Serve(context.Background(), bytes.NewReader(data), "test")
	assert.ErrorIs(t, err, protocol.ErrTruncated)

	// the held key does not outlive the link
	inj.mu.Lock()
	defer inj.mu.Unlock()
	assert.Equal(t, 1, inj.releases)
	assert.True(t, inj.report.Empty())
}

func TestRunReconnects(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	inj := &mockInjector{}
	ir := NewInputReceiver(listener.Addr().String(), InjectorSink{Injector: inj}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ir.Run(ctx) }()

	for i := 0; i < 2; i++ {
		conn, err := listener.Accept()
		require.NoError(t, err)
		_, err = conn.Write(frames(protocol.MouseMove{DX: 1}))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return ir.IsConnected() }, time.Second, time.Millisecond)
		_ = conn.Close()
	}

	require.Eventually(t, func() bool {
		applied, _ := ir.Stats()
		return applied == 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRelease(t *testing.T) {
	inj := &mockInjector{}
	ir := NewInputReceiver("unused", InjectorSink{Injector: inj}, time.Second)

	client, server := net.Pipe()
	defer func() { _ = server.Close() }()

	done := make(chan error, 1)
	go func() { done <- ir.Serve(context.Background(), client, "pipe") }()

	require.Eventually(t, func() bool { return ir.IsConnected() }, time.Second, time.Millisecond)
	require.NoError(t, ir.Release())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Release")
	}
	assert.GreaterOrEqual(t, inj.releases, 2)
}
