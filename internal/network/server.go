// Package network carries frames between controller and target over TCP or a serial line
package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/bnema/onekm/internal/logger"
)

// LinkState is reported whenever the target link comes up or goes down
type LinkState struct {
	Up   bool
	Peer string
}

// Server accepts the target's TCP connection. Only one target is served at a time.
type Server struct {
	bindAddress  string
	port         int
	listener     net.Listener
	client       net.Conn
	mu           sync.Mutex
	connected    chan net.Conn
	disconnected chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(bindAddress string, port int) *Server {
	return &Server{
		bindAddress:  bindAddress,
		port:         port,
		connected:    make(chan net.Conn, 1),
		disconnected: make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
}

// Start begins listening for connections
func (s *Server) Start(ctx context.Context) error {
	if s.port < 0 || s.port > 65535 {
		return fmt.Errorf("invalid port: %d", s.port)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.bindAddress, fmt.Sprint(s.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	// Handle context cancellation
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stop:
		}
	}()

	logger.Infof("Listening for target on %s", listener.Addr())
	return nil
}

// Stop shuts down the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Lock()
		if s.client != nil {
			_ = s.client.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
}

// Address returns the server's listening address
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Connected delivers each accepted target connection
func (s *Server) Connected() <-chan net.Conn {
	return s.connected
}

// Disconnected signals when the target goes away
func (s *Server) Disconnected() <-chan struct{} {
	return s.disconnected
}

// Serve attaches each accepted connection to the sender and reports link
// changes until ctx ends
func (s *Server) Serve(ctx context.Context, sender *Sender, states chan<- LinkState) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case conn := <-s.connected:
			sender.SetWriter(conn)
			report(ctx, states, LinkState{Up: true, Peer: conn.RemoteAddr().String()})
		case <-s.disconnected:
			sender.SetWriter(nil)
			report(ctx, states, LinkState{Up: false})
		}
	}
}

func report(ctx context.Context, states chan<- LinkState, st LinkState) {
	select {
	case states <- st:
	case <-ctx.Done():
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				logger.Warnf("Accept failed: %v", err)
				continue
			}
		}

		s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	s.mu.Lock()
	if s.client != nil {
		// Already have a target, reject new connection
		s.mu.Unlock()
		logger.Warnf("Rejecting second target from %s", conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	s.client = conn
	s.mu.Unlock()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	logger.Infof("Target connected from %s", conn.RemoteAddr())

	select {
	case s.connected <- conn:
	case <-s.stop:
		_ = conn.Close()
		return
	}

	// The target never sends anything; reading only detects the hangup
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = io.Copy(io.Discard, conn)

		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()
		_ = conn.Close()
		logger.Infof("Target %s disconnected", conn.RemoteAddr())

		select {
		case s.disconnected <- struct{}{}:
		case <-s.stop:
		}
	}()
}
