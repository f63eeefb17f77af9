package input

import (
	"github.com/holoplot/go-evdev"
)

// Kind classifies a raw device event
type Kind uint8

const (
	KindOther Kind = iota
	KindKey
	KindRel
	KindSync
)

// Key event values
const (
	KeyUp     int32 = 0
	KeyDown   int32 = 1
	KeyRepeat int32 = 2
)

// RawEvent is one event read from a capture device
type RawEvent struct {
	Kind  Kind
	Code  evdev.EvCode
	Value int32
}

// FromEvdev converts an evdev event
func FromEvdev(ev *evdev.InputEvent) RawEvent {
	kind := KindOther
	switch ev.Type {
	case evdev.EV_KEY:
		kind = KindKey
	case evdev.EV_REL:
		kind = KindRel
	case evdev.EV_SYN:
		kind = KindSync
	}
	return RawEvent{Kind: kind, Code: ev.Code, Value: ev.Value}
}

// Key builds a key event
func Key(code evdev.EvCode, value int32) RawEvent {
	return RawEvent{Kind: KindKey, Code: code, Value: value}
}

// Rel builds a relative axis event
func Rel(code evdev.EvCode, value int32) RawEvent {
	return RawEvent{Kind: KindRel, Code: code, Value: value}
}
