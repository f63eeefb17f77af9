package server

import "time"

// HotkeyGuard counts hotkey presses in a rolling window. Reaching the limit
// means the operator is hammering the key because the target stopped responding.
type HotkeyGuard struct {
	window  time.Duration
	limit   int
	presses []time.Time
	now     func() time.Time
}

// NewHotkeyGuard creates a guard; now may be nil to use the wall clock
func NewHotkeyGuard(window time.Duration, limit int, now func() time.Time) *HotkeyGuard {
	if window <= 0 {
		window = 2 * time.Second
	}
	if limit <= 0 {
		limit = 3
	}
	if now == nil {
		now = time.Now
	}
	return &HotkeyGuard{window: window, limit: limit, now: now}
}

// Press records a press and reports whether the limit was reached
func (g *HotkeyGuard) Press() bool {
	t := g.now()

	kept := g.presses[:0]
	for _, p := range g.presses {
		if t.Sub(p) < g.window {
			kept = append(kept, p)
		}
	}
	g.presses = append(kept, t)

	return len(g.presses) >= g.limit
}

// Count returns the presses currently inside the window
func (g *HotkeyGuard) Count() int {
	return len(g.presses)
}

// Reset forgets all presses
func (g *HotkeyGuard) Reset() {
	g.presses = g.presses[:0]
}
