package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/onekm/internal/logger"
)

// MessageHandler executes IPC requests against the controller
type MessageHandler interface {
	HandleSwitch() (Status, error)
	HandleRelease(exit bool) (Status, error)
	HandleStatus() (Status, error)
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a new socket server
func NewSocketServer(handler MessageHandler) (*SocketServer, error) {
	socketPath, err := GetSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}

	return NewSocketServerWithPath(socketPath, handler), nil
}

// NewSocketServerWithPath creates a socket server listening on socketPath
func NewSocketServerWithPath(socketPath string, handler MessageHandler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.wg.Wait()

	_ = os.RemoveAll(s.socketPath)
	logger.Info("IPC socket server stopped")
}

// SocketPath returns where the server listens
func (s *SocketServer) SocketPath() string {
	return s.socketPath
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection answers requests until the peer hangs up
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		data, err := readMessage(conn)
		if err != nil {
			logger.Debugf("IPC connection closed: %v", err)
			return
		}

		status := s.handleMessage(data)
		if err := writeMessage(conn, status.Marshal()); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage processes a single message and returns a response
func (s *SocketServer) handleMessage(data []byte) Status {
	req, err := UnmarshalRequest(data)
	if err != nil {
		return Status{Error: fmt.Sprintf("invalid request: %v", err)}
	}
	logger.Debugf("IPC request: %s", req.Kind)

	var st Status
	switch req.Kind {
	case RequestStatus:
		st, err = s.handler.HandleStatus()
	case RequestSwitch:
		st, err = s.handler.HandleSwitch()
	case RequestRelease:
		st, err = s.handler.HandleRelease(req.Exit)
	default:
		return Status{Error: fmt.Sprintf("unknown request: %s", req.Kind)}
	}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// GetSocketPath returns /tmp/onekm-{username}.sock
func GetSocketPath() (string, error) {
	name := os.Getenv("SUDO_USER")
	if name == "" {
		currentUser, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		name = currentUser.Username
	}
	return filepath.Join("/tmp", fmt.Sprintf("onekm-%s.sock", name)), nil
}
