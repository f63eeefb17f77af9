// Package ipc lets onekm subcommands talk to a running controller over a unix socket.
// Messages are protobuf wire format, each prefixed with a 4-byte big-endian length.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxMessageSize bounds a single IPC message
const maxMessageSize = 64 << 10

// ErrMessageTooLarge is returned for a length prefix above maxMessageSize
var ErrMessageTooLarge = errors.New("ipc message too large")

// RequestKind selects the controller action
type RequestKind uint64

const (
	RequestStatus RequestKind = iota
	RequestSwitch
	RequestRelease
)

func (k RequestKind) String() string {
	switch k {
	case RequestStatus:
		return "status"
	case RequestSwitch:
		return "switch"
	case RequestRelease:
		return "release"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(k))
	}
}

// Request is sent by a CLI subcommand
type Request struct {
	Kind RequestKind
	// Exit asks the controller to stop after a release
	Exit bool
}

// Status is the controller's answer to every request
type Status struct {
	Remote        bool
	Connected     bool
	Peer          string
	Sent          uint64
	Dropped       uint64
	ExitRequested bool
	ExitReason    string
	Error         string
}

// field numbers
const (
	reqKind protowire.Number = 1
	reqExit protowire.Number = 2

	stRemote    protowire.Number = 1
	stConnected protowire.Number = 2
	stPeer      protowire.Number = 3
	stSent      protowire.Number = 4
	stDropped   protowire.Number = 5
	stExit      protowire.Number = 6
	stError     protowire.Number = 7
	stReason    protowire.Number = 8
)

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// Marshal encodes the request
func (r Request) Marshal() []byte {
	var b []byte
	b = appendUint(b, reqKind, uint64(r.Kind))
	b = appendBool(b, reqExit, r.Exit)
	return b
}

// Marshal encodes the status
func (s Status) Marshal() []byte {
	var b []byte
	b = appendBool(b, stRemote, s.Remote)
	b = appendBool(b, stConnected, s.Connected)
	b = appendString(b, stPeer, s.Peer)
	b = appendUint(b, stSent, s.Sent)
	b = appendUint(b, stDropped, s.Dropped)
	b = appendBool(b, stExit, s.ExitRequested)
	b = appendString(b, stError, s.Error)
	b = appendString(b, stReason, s.ExitReason)
	return b
}

// fieldFunc receives one decoded field; exactly one of v or s is meaningful
type fieldFunc func(num protowire.Number, v uint64, s string)

// consumeFields walks a message, skipping unknown fields
func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			fn(num, v, "")
			b = b[n:]
		case protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			fn(num, 0, s)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

// UnmarshalRequest decodes a request
func UnmarshalRequest(b []byte) (Request, error) {
	var r Request
	err := consumeFields(b, func(num protowire.Number, v uint64, _ string) {
		switch num {
		case reqKind:
			r.Kind = RequestKind(v)
		case reqExit:
			r.Exit = v != 0
		}
	})
	return r, err
}

// UnmarshalStatus decodes a status
func UnmarshalStatus(b []byte) (Status, error) {
	var st Status
	err := consumeFields(b, func(num protowire.Number, v uint64, s string) {
		switch num {
		case stRemote:
			st.Remote = v != 0
		case stConnected:
			st.Connected = v != 0
		case stPeer:
			st.Peer = s
		case stSent:
			st.Sent = v
		case stDropped:
			st.Dropped = v
		case stExit:
			st.ExitRequested = v != 0
		case stError:
			st.Error = s
		case stReason:
			st.ExitReason = s
		}
	})
	return st, err
}

// readMessage reads one length-prefixed message
func readMessage(r io.Reader) ([]byte, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}
	return data, nil
}

// writeMessage writes one length-prefixed message
func writeMessage(w io.Writer, data []byte) error {
	length := uint32(len(data)) //nolint:gosec // bounded by maxMessageSize
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}
