package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDial(t *testing.T) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}
	defer func() { _ = listener.Close() }()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		time.Sleep(100 * time.Millisecond)
	}()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{
			name:    "valid connection",
			address: listener.Addr().String(),
		},
		{
			name:    "invalid address",
			address: "invalid:address",
			wantErr: true,
		},
		{
			name:    "connection refused",
			address: "localhost:1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			conn, err := Dial(ctx, tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("Dial() error = %v, wantErr %v", err, tt.wantErr)
			}
			if conn != nil {
				_ = conn.Close()
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	b := &Backoff{Initial: time.Second, Max: 60 * time.Second}

	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}
