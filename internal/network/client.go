package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Dial connects to the controller
func Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 15 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// Backoff doubles a reconnect delay up to max
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	current time.Duration
}

// Next returns the delay to wait before the next attempt
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
		if b.current <= 0 {
			b.current = time.Second
		}
		return b.current
	}
	b.current *= 2
	if b.Max > 0 && b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset starts over from Initial
func (b *Backoff) Reset() {
	b.current = 0
}
