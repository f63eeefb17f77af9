package ipc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockHandler implements MessageHandler for testing
type MockHandler struct {
	mu           sync.Mutex
	switchCalled bool
	releaseExit  *bool
	statusCalled bool
	status       Status
	err          error
}

func (m *MockHandler) HandleSwitch() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchCalled = true
	m.status.Remote = !m.status.Remote
	return m.status, m.err
}

func (m *MockHandler) HandleRelease(exit bool) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseExit = &exit
	m.status.Remote = false
	m.status.ExitRequested = exit
	return m.status, m.err
}

func (m *MockHandler) HandleStatus() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalled = true
	return m.status, m.err
}

func startTestServer(t *testing.T, handler MessageHandler) (*SocketServer, *Client) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "onekm.sock")
	server := NewSocketServerWithPath(socketPath, handler)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(server.Stop)
	return server, NewClientWithPath(socketPath, 2*time.Second)
}

func TestNewSocketServer(t *testing.T) {
	handler := &MockHandler{}
	server, err := NewSocketServer(handler)
	if err != nil {
		t.Fatalf("NewSocketServer() error = %v", err)
	}

	if server.handler != handler {
		t.Error("Handler not set correctly")
	}

	if server.SocketPath() == "" {
		t.Error("Socket path not set")
	}
}

func TestGetSocketPath(t *testing.T) {
	t.Setenv("SUDO_USER", "alice")
	path, err := GetSocketPath()
	if err != nil {
		t.Fatalf("GetSocketPath() error = %v", err)
	}
	if path != "/tmp/onekm-alice.sock" {
		t.Errorf("Expected /tmp/onekm-alice.sock, got %s", path)
	}

	t.Setenv("SUDO_USER", "")
	path, err = GetSocketPath()
	if err != nil {
		t.Fatalf("GetSocketPath() error = %v", err)
	}
	if !strings.HasPrefix(path, "/tmp/onekm-") || !strings.HasSuffix(path, ".sock") {
		t.Errorf("Unexpected socket path %s", path)
	}
}

func TestSocketServerStartStop(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "onekm.sock")
	server := NewSocketServerWithPath(socketPath, &MockHandler{})

	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Socket file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected socket mode 0600, got %v", info.Mode().Perm())
	}

	// Starting twice is a no-op
	if err := server.Start(); err != nil {
		t.Errorf("Second Start() error = %v", err)
	}

	server.Stop()
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("Socket file not removed after Stop")
	}

	// Stopping twice is safe
	server.Stop()
}

func TestSocketServerCleansStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "onekm.sock")
	if err := os.WriteFile(socketPath, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	server := NewSocketServerWithPath(socketPath, &MockHandler{})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() should replace a stale socket: %v", err)
	}
	server.Stop()
}

func TestClientRequests(t *testing.T) {
	handler := &MockHandler{status: Status{Connected: true, Peer: "target:24800"}}
	_, client := startTestServer(t, handler)

	st, err := client.SendStatus()
	if err != nil {
		t.Fatalf("SendStatus() error = %v", err)
	}
	if !handler.statusCalled || !st.Connected || st.Peer != "target:24800" {
		t.Errorf("Unexpected status %+v", st)
	}

	st, err = client.SendSwitch()
	if err != nil {
		t.Fatalf("SendSwitch() error = %v", err)
	}
	if !handler.switchCalled || !st.Remote {
		t.Errorf("Expected switch to REMOTE, got %+v", st)
	}

	st, err = client.SendRelease(true)
	if err != nil {
		t.Fatalf("SendRelease() error = %v", err)
	}
	if handler.releaseExit == nil || !*handler.releaseExit {
		t.Error("Release exit flag not delivered")
	}
	if st.Remote || !st.ExitRequested {
		t.Errorf("Unexpected status after release %+v", st)
	}
}

func TestClientHandlerError(t *testing.T) {
	handler := &MockHandler{err: errors.New("no target connected")}
	_, client := startTestServer(t, handler)

	st, err := client.SendSwitch()
	if err == nil {
		t.Fatal("Expected error from handler")
	}
	if !strings.Contains(err.Error(), "no target connected") {
		t.Errorf("Unexpected error %v", err)
	}
	if st.Error != "no target connected" {
		t.Errorf("Expected error in status, got %q", st.Error)
	}
}

func TestClientNotRunning(t *testing.T) {
	client := NewClientWithPath(filepath.Join(t.TempDir(), "missing.sock"), time.Second)
	_, err := client.SendStatus()
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestConcurrentClients(t *testing.T) {
	_, client := startTestServer(t, &MockHandler{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.SendStatus(); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("SendStatus() error = %v", err)
	}
}
