package network

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bnema/onekm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Start(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{
			name:    "ephemeral port",
			port:    0,
			wantErr: false,
		},
		{
			name:    "invalid port",
			port:    -1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer("127.0.0.1", tt.port)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			err := server.Start(ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("Server.Start() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				conn, err := net.Dial("tcp", server.Address())
				if err != nil {
					t.Errorf("Failed to connect to server: %v", err)
				} else {
					_ = conn.Close()
				}
				server.Stop()
			}
		})
	}
}

func TestServer_ConnectAndDisconnect(t *testing.T) {
	server := NewServer("127.0.0.1", 0)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	conn, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)

	select {
	case c := <-server.Connected():
		assert.NotNil(t, c)
	case <-time.After(time.Second):
		t.Fatal("Server did not report target connection")
	}

	_ = conn.Close()

	select {
	case <-server.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("Server did not report target disconnection")
	}
}

func TestServer_OnlyOneTarget(t *testing.T) {
	server := NewServer("127.0.0.1", 0)
	require.NoError(t, server.Start(context.Background()))
	defer server.Stop()

	conn1, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)
	defer func() { _ = conn1.Close() }()

	select {
	case <-server.Connected():
	case <-time.After(time.Second):
		t.Fatal("first target not accepted")
	}

	conn2, err := net.Dial("tcp", server.Address())
	require.NoError(t, err)
	defer func() { _ = conn2.Close() }()

	// the second connection is closed by the server
	buf := make([]byte, 1)
	_ = conn2.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn2.Read(buf)
	assert.Error(t, err)
}

func TestServer_ServeDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewServer("127.0.0.1", 0)
	require.NoError(t, server.Start(ctx))
	defer server.Stop()

	sender := NewSender(nil, 8)
	defer func() { _ = sender.Close() }()

	states := make(chan LinkState, 4)
	go server.Serve(ctx, sender, states)

	conn, err := Dial(ctx, server.Address())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	select {
	case st := <-states:
		assert.True(t, st.Up)
		assert.NotEmpty(t, st.Peer)
	case <-time.After(time.Second):
		t.Fatal("no link up state")
	}

	require.NoError(t, sender.Send(protocol.Switch{Remote: true}))

	frame := make([]byte, protocol.FrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(conn, frame)
	require.NoError(t, err)

	msg, err := protocol.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.Switch{Remote: true}, msg)

	_ = conn.Close()
	select {
	case st := <-states:
		assert.False(t, st.Up)
	case <-time.After(time.Second):
		t.Fatal("no link down state")
	}
	assert.False(t, sender.Connected())
}
