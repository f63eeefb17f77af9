// Package motion coalesces relative pointer and wheel deltas into bounded chunks.
package motion

// Axis identifies one accumulator lane
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisWheel
	AxisHWheel
	numAxes
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisWheel:
		return "wheel"
	case AxisHWheel:
		return "hwheel"
	default:
		return "unknown"
	}
}

// Clamp widths of the two consumers
const (
	WireLimit = 32767 // int16 frame fields
	HIDLimit  = 127   // boot mouse report bytes
)

// Accumulator holds pending deltas per axis. The zero value is ready to use.
// It is not safe for concurrent use; callers own the locking.
type Accumulator struct {
	pending [numAxes]int64
}

// Add appends a delta to an axis. Unknown axes are ignored.
func (a *Accumulator) Add(axis Axis, value int64) {
	if axis < 0 || axis >= numAxes {
		return
	}
	a.pending[axis] += value
}

// Pending returns the undelivered total for an axis
func (a *Accumulator) Pending(axis Axis) int64 {
	if axis < 0 || axis >= numAxes {
		return 0
	}
	return a.pending[axis]
}

// TakeClamped removes and returns the pending value saturated to [min, max].
// Only the emitted amount is subtracted; hadRemainder reports whether anything is left.
func (a *Accumulator) TakeClamped(axis Axis, min, max int64) (emitted int64, hadRemainder bool) {
	if axis < 0 || axis >= numAxes {
		return 0, false
	}
	v := a.pending[axis]
	switch {
	case v > max:
		emitted = max
	case v < min:
		emitted = min
	default:
		emitted = v
	}
	a.pending[axis] -= emitted
	return emitted, a.pending[axis] != 0
}

// Take is TakeClamped with a symmetric limit
func (a *Accumulator) Take(axis Axis, limit int64) (int64, bool) {
	return a.TakeClamped(axis, -limit, limit)
}

// HasMotion reports pending pointer motion on either axis
func (a *Accumulator) HasMotion() bool {
	return a.pending[AxisX] != 0 || a.pending[AxisY] != 0
}

// HasWheel reports pending wheel motion on either wheel axis
func (a *Accumulator) HasWheel() bool {
	return a.pending[AxisWheel] != 0 || a.pending[AxisHWheel] != 0
}

// Empty reports whether every axis is drained
func (a *Accumulator) Empty() bool {
	return !a.HasMotion() && !a.HasWheel()
}

// Reset discards everything pending
func (a *Accumulator) Reset() {
	a.pending = [numAxes]int64{}
}
