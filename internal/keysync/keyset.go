// Package keysync repairs keys a receiver still believes are held after control moved away.
package keysync

import (
	"math/bits"

	"github.com/holoplot/go-evdev"
)

// Size is the number of key codes a KeySet covers
const Size = int(evdev.KEY_MAX) + 1

// KeySet is a bitset over the evdev key code space. The zero value is empty.
type KeySet [(Size + 63) / 64]uint64

// FromCodes builds a set from a list of codes
func FromCodes(codes ...evdev.EvCode) KeySet {
	var s KeySet
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// FromState builds a set from an evdev key state map
func FromState(state map[evdev.EvCode]bool) KeySet {
	var s KeySet
	for c, down := range state {
		if down {
			s.Add(c)
		}
	}
	return s
}

// Add marks code as pressed. Out of range codes are ignored.
func (s *KeySet) Add(code evdev.EvCode) {
	if int(code) >= Size {
		return
	}
	s[code/64] |= 1 << (code % 64)
}

// Remove clears code
func (s *KeySet) Remove(code evdev.EvCode) {
	if int(code) >= Size {
		return
	}
	s[code/64] &^= 1 << (code % 64)
}

// Has reports whether code is pressed
func (s KeySet) Has(code evdev.EvCode) bool {
	if int(code) >= Size {
		return false
	}
	return s[code/64]&(1<<(code%64)) != 0
}

// Union returns the keys pressed in either set
func (s KeySet) Union(o KeySet) KeySet {
	for i := range s {
		s[i] |= o[i]
	}
	return s
}

// Len returns the number of pressed keys
func (s KeySet) Len() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// Codes lists pressed codes in ascending order
func (s KeySet) Codes() []evdev.EvCode {
	var out []evdev.EvCode
	for i, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, evdev.EvCode(i*64+b))
			w &^= 1 << b
		}
	}
	return out
}
