package network

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bnema/onekm/internal/logger"
	"github.com/bnema/onekm/internal/protocol"
)

var (
	// ErrNotConnected is returned when no link is attached
	ErrNotConnected = errors.New("not connected")
	// ErrQueueFull is returned when a non-motion frame finds no room
	ErrQueueFull = errors.New("send queue full")
	// ErrSenderClosed is returned after Close
	ErrSenderClosed = errors.New("sender closed")
)

// Sender queues frames and writes them to the link from its own goroutine,
// so a slow link never stalls capture. The queue is bounded: motion frames
// are dropped first when it fills up.
type Sender struct {
	mu     sync.Mutex
	w      io.Writer
	queue  []protocol.Message
	depth  int
	closed bool

	flushChan chan struct{}
	done      chan struct{}
	errs      chan error
	wg        sync.WaitGroup
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewSender creates a sender writing to w. w may be nil until a link comes up.
func NewSender(w io.Writer, depth int) *Sender {
	if depth <= 0 {
		depth = 64
	}
	s := &Sender{
		w:         w,
		queue:     make([]protocol.Message, 0, depth),
		depth:     depth,
		flushChan: make(chan struct{}, 1),
		done:      make(chan struct{}),
		errs:      make(chan error, 1),
	}

	s.wg.Add(1)
	go s.flushLoop()
	return s
}

// SetWriter attaches a new link, or detaches with nil. Queued frames are discarded.
func (s *Sender) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
	s.queue = s.queue[:0]
}

// Connected reports whether a link is attached
func (s *Sender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w != nil
}

// Send queues one frame
func (s *Sender) Send(m protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSenderClosed
	}
	if s.w == nil {
		return ErrNotConnected
	}

	if len(s.queue) >= s.depth {
		if protocol.IsMotion(m) {
			s.dropped.Add(1)
			return nil
		}
		if !s.evictMotionLocked() {
			s.dropped.Add(1)
			return ErrQueueFull
		}
	}

	s.queue = append(s.queue, m)

	// Schedule flush if this is the first frame
	if len(s.queue) == 1 {
		select {
		case s.flushChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// SendAll queues frames in order and returns the first error
func (s *Sender) SendAll(msgs []protocol.Message) error {
	var first error
	for _, m := range msgs {
		if err := s.Send(m); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// evictMotionLocked drops the oldest queued motion frame (caller must hold mutex)
func (s *Sender) evictMotionLocked() bool {
	for i, m := range s.queue {
		if protocol.IsMotion(m) {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dropped.Add(1)
			return true
		}
	}
	return false
}

// Errors delivers write failures. After a failure the link is detached.
func (s *Sender) Errors() <-chan error {
	return s.errs
}

// Stats returns frames written and frames dropped
func (s *Sender) Stats() (sent, dropped uint64) {
	return s.sent.Load(), s.dropped.Load()
}

// flushLoop writes queued frames as one batch per wakeup
func (s *Sender) flushLoop() {
	defer s.wg.Done()

	buf := make([]byte, 0, s.depth*protocol.FrameSize)
	for {
		select {
		case <-s.done:
			s.flush(buf)
			return
		case <-s.flushChan:
			buf = s.flush(buf)
		}
	}
}

func (s *Sender) flush(buf []byte) []byte {
	s.mu.Lock()
	w := s.w
	n := len(s.queue)
	buf = buf[:0]
	for _, m := range s.queue {
		buf = protocol.AppendFrame(buf, m)
	}
	s.queue = s.queue[:0]
	s.mu.Unlock()

	if w == nil || n == 0 {
		return buf
	}

	if _, err := w.Write(buf); err != nil {
		logger.Warnf("Link write failed: %v", err)
		s.mu.Lock()
		if s.w == w {
			s.w = nil
		}
		s.mu.Unlock()
		if c, ok := w.(io.Closer); ok {
			_ = c.Close()
		}
		select {
		case s.errs <- err:
		default:
		}
		return buf
	}
	s.sent.Add(uint64(n))

	// Frames queued while writing need another pass
	s.mu.Lock()
	pending := len(s.queue) > 0
	s.mu.Unlock()
	if pending {
		select {
		case s.flushChan <- struct{}{}:
		default:
		}
	}
	return buf
}

// Close writes what is queued and stops the flush goroutine
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
