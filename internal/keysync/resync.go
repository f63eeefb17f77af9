package keysync

import (
	"math/bits"

	"github.com/bnema/onekm/internal/hid"
	"github.com/holoplot/go-evdev"
)

// Release is a synthetic key-up for a key the downstream still holds
type Release struct {
	Code evdev.EvCode
}

// Resync returns one release for every key pressed downstream but not in hardware,
// in ascending code order. It never produces a press.
func Resync(hardware, downstream KeySet) []Release {
	var out []Release
	for i := range downstream {
		stale := downstream[i] &^ hardware[i]
		if stale == 0 {
			continue
		}
		for stale != 0 {
			b := bits.TrailingZeros64(stale)
			out = append(out, Release{Code: evdev.EvCode(i*64 + b)})
			stale &^= 1 << b
		}
	}
	return out
}

// Downstream returns the keys a report builder last reported as held
func Downstream(b *hid.ReportBuilder) KeySet {
	return FromCodes(b.Pressed()...)
}

// Apply feeds the releases into the builder so its model matches reality.
// It returns the final report and whether anything changed.
func Apply(b *hid.ReportBuilder, releases []Release) (hid.KeyboardReport, bool) {
	changed := false
	for _, r := range releases {
		if _, ok := b.ProcessKey(r.Code, false); ok {
			changed = true
		}
	}
	return b.Report(), changed
}

// Forget removes released keys from a tracked set
func Forget(s *KeySet, releases []Release) {
	for _, r := range releases {
		s.Remove(r.Code)
	}
}
