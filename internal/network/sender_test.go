package network

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/onekm/internal/hid"
	"github.com/bnema/onekm/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingWriter holds every write until released
type blockingWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	release chan struct{}
	err     error
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{release: make(chan struct{})}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	return w.buf.Write(p)
}

func (w *blockingWriter) frames(t *testing.T) []protocol.Message {
	t.Helper()
	w.mu.Lock()
	data := append([]byte(nil), w.buf.Bytes()...)
	w.mu.Unlock()

	fr := protocol.NewFrameReader(bytes.NewReader(data))
	var out []protocol.Message
	for {
		m, err := fr.Next()
		if err != nil {
			return out
		}
		out = append(out, m)
	}
}

func TestSenderWritesInOrder(t *testing.T) {
	w := newBlockingWriter()
	close(w.release)
	s := NewSender(w, 16)

	msgs := []protocol.Message{
		protocol.MouseMove{DX: 1},
		protocol.MouseButton{Button: 1, Pressed: true},
		protocol.KeyboardReport{Report: hid.KeyboardReport{Keys: [6]uint8{0x04}}},
		protocol.Switch{Remote: false},
	}
	require.NoError(t, s.SendAll(msgs))
	require.NoError(t, s.Close())

	assert.Equal(t, msgs, w.frames(t))
	sent, dropped := s.Stats()
	assert.Equal(t, uint64(4), sent)
	assert.Zero(t, dropped)
}

func TestSenderNotConnected(t *testing.T) {
	s := NewSender(nil, 4)
	defer func() { _ = s.Close() }()

	assert.ErrorIs(t, s.Send(protocol.Switch{}), ErrNotConnected)
	assert.False(t, s.Connected())
}

func TestSenderDropsMotionWhenFull(t *testing.T) {
	w := newBlockingWriter()
	s := NewSender(w, 2)

	// the first frame is taken by the flush goroutine and blocks in Write
	require.NoError(t, s.Send(protocol.MouseMove{DX: 100}))
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.queue) == 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Send(protocol.MouseMove{DX: 1}))
	require.NoError(t, s.Send(protocol.MouseMove{DX: 2}))

	// full: new motion is dropped
	require.NoError(t, s.Send(protocol.MouseMove{DX: 3}))
	// full: a button evicts the oldest motion
	require.NoError(t, s.Send(protocol.MouseButton{Button: 1, Pressed: true}))
	// full of non-droppable frames after evicting again
	require.NoError(t, s.Send(protocol.MouseButton{Button: 1, Pressed: false}))
	assert.ErrorIs(t, s.Send(protocol.Switch{}), ErrQueueFull)

	close(w.release)
	require.NoError(t, s.Close())

	assert.Equal(t, []protocol.Message{
		protocol.MouseMove{DX: 100},
		protocol.MouseButton{Button: 1, Pressed: true},
		protocol.MouseButton{Button: 1, Pressed: false},
	}, w.frames(t))

	_, dropped := s.Stats()
	assert.Equal(t, uint64(4), dropped)
}

func TestSenderWriteErrorDetaches(t *testing.T) {
	w := newBlockingWriter()
	w.err = errors.New("broken pipe")
	close(w.release)
	s := NewSender(w, 4)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Send(protocol.Switch{Remote: true}))

	select {
	case err := <-s.Errors():
		assert.EqualError(t, err, "broken pipe")
	case <-time.After(time.Second):
		t.Fatal("write error not reported")
	}
	assert.False(t, s.Connected())
	assert.ErrorIs(t, s.Send(protocol.Switch{}), ErrNotConnected)

	// reattaching resumes sending
	ok := newBlockingWriter()
	close(ok.release)
	s.SetWriter(ok)
	require.NoError(t, s.Send(protocol.Switch{}))
	require.Eventually(t, func() bool { return len(ok.frames(t)) == 1 }, time.Second, time.Millisecond)
}

func TestSenderClosed(t *testing.T) {
	s := NewSender(&bytes.Buffer{}, 4)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(protocol.Switch{}), ErrSenderClosed)
}
