package ipc

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/bnema/onekm/internal/logger"
)

// ErrNotRunning is returned when no controller listens on the socket
var ErrNotRunning = errors.New("onekm server is not running")

// Client handles IPC communication with a running controller
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() (*Client, error) {
	socketPath, err := GetSocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get socket path: %w", err)
	}
	return &Client{socketPath: socketPath, timeout: 5 * time.Second}, nil
}

// NewClientWithPath creates a client for a specific socket
func NewClientWithPath(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// SendSwitch toggles LOCAL/REMOTE like the hotkey does
func (c *Client) SendSwitch() (Status, error) {
	return c.send(Request{Kind: RequestSwitch})
}

// SendRelease forces LOCAL, optionally asking the controller to exit
func (c *Client) SendRelease(exit bool) (Status, error) {
	return c.send(Request{Kind: RequestRelease, Exit: exit})
}

// SendStatus queries the controller
func (c *Client) SendStatus() (Status, error) {
	return c.send(Request{Kind: RequestStatus})
}

func (c *Client) send(req Request) (Status, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isNotRunning(err) {
			return Status{}, ErrNotRunning
		}
		return Status{}, fmt.Errorf("failed to connect to onekm: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, req.Marshal()); err != nil {
		return Status{}, fmt.Errorf("failed to send message: %w", err)
	}

	data, err := readMessage(conn)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read response: %w", err)
	}

	st, err := UnmarshalStatus(data)
	if err != nil {
		return Status{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if st.Error != "" {
		return st, fmt.Errorf("server error: %s", st.Error)
	}
	return st, nil
}

func isNotRunning(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}

// IsRunning checks if a controller answers on the default socket
func IsRunning() bool {
	client, err := NewClient()
	if err != nil {
		return false
	}
	_, err = client.SendStatus()
	return err == nil
}
