package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/onekm/internal/hid"
)

var (
	// ErrTruncated is returned when fewer than FrameSize bytes are available
	ErrTruncated = errors.New("truncated frame")
	// ErrUnknownType is returned for a tag outside the defined set
	ErrUnknownType = errors.New("unknown message type")
)

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (m MouseMove) put(p []byte) {
	binary.LittleEndian.PutUint16(p[0:], uint16(m.DX))
	binary.LittleEndian.PutUint16(p[2:], uint16(m.DY))
}

func (m MouseButton) put(p []byte) {
	p[0] = m.Button
	p[1] = boolByte(m.Pressed)
}

func (m KeyboardReport) put(p []byte) {
	b := m.Report.Bytes()
	copy(p, b[:])
}

func (m Switch) put(p []byte) {
	p[0] = boolByte(m.Remote)
}

func (m MouseWheel) put(p []byte) {
	binary.LittleEndian.PutUint16(p[0:], uint16(m.Vertical))
	binary.LittleEndian.PutUint16(p[2:], uint16(m.Horizontal))
}

// Encode serializes a message into one frame. Unused payload bytes are zero.
func Encode(m Message) [FrameSize]byte {
	var f [FrameSize]byte
	f[0] = byte(m.Type())
	m.put(f[1:])
	return f
}

// AppendFrame appends the encoded frame to dst
func AppendFrame(dst []byte, m Message) []byte {
	f := Encode(m)
	return append(dst, f[:]...)
}

// Decode parses the first frame in b
func Decode(b []byte) (Message, error) {
	if len(b) < FrameSize {
		return nil, fmt.Errorf("%w: have %d of %d bytes", ErrTruncated, len(b), FrameSize)
	}
	p := b[1:FrameSize]

	switch Type(b[0]) {
	case TypeMouseMove:
		return MouseMove{
			DX: int16(binary.LittleEndian.Uint16(p[0:])),
			DY: int16(binary.LittleEndian.Uint16(p[2:])),
		}, nil
	case TypeMouseButton:
		return MouseButton{Button: p[0], Pressed: p[1] != 0}, nil
	case TypeKeyboardReport:
		var r hid.KeyboardReport
		r.Modifiers = p[0]
		copy(r.Keys[:], p[2:])
		return KeyboardReport{Report: r}, nil
	case TypeSwitch:
		return Switch{Remote: p[0] != 0}, nil
	case TypeMouseWheel:
		return MouseWheel{
			Vertical:   int16(binary.LittleEndian.Uint16(p[0:])),
			Horizontal: int16(binary.LittleEndian.Uint16(p[2:])),
		}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, b[0])
	}
}

// FrameReader reads whole frames from a byte stream
type FrameReader struct {
	r   io.Reader
	buf [FrameSize]byte
}

// NewFrameReader wraps r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// Next blocks for the next frame. A clean end of stream returns io.EOF, a partial
// frame returns ErrTruncated. An unknown tag returns ErrUnknownType and the frame is
// consumed, so the caller may keep reading.
func (fr *FrameReader) Next() (Message, error) {
	n, err := io.ReadFull(fr.r, fr.buf[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: have %d of %d bytes", ErrTruncated, n, FrameSize)
		}
		return nil, err
	}
	return Decode(fr.buf[:])
}
