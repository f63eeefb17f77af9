package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) set(seconds float64) {
	c.t = time.Unix(1700000000, 0).Add(time.Duration(seconds * float64(time.Second)))
}

func TestHotkeyGuard(t *testing.T) {
	tests := []struct {
		name    string
		presses []float64
		want    []bool
	}{
		{
			name:    "three presses inside the window",
			presses: []float64{0, 0.5, 1.0},
			want:    []bool{false, false, true},
		},
		{
			name:    "window exceeded",
			presses: []float64{0, 1.5, 4.0},
			want:    []bool{false, false, false},
		},
		{
			name:    "press exactly at window boundary drops the oldest",
			presses: []float64{0, 1.0, 2.0},
			want:    []bool{false, false, false},
		},
		{
			name:    "later burst still trips",
			presses: []float64{0, 5, 5.1, 5.2},
			want:    []bool{false, false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{}
			g := NewHotkeyGuard(2*time.Second, 3, clock.now)
			for i, p := range tt.presses {
				clock.set(p)
				assert.Equal(t, tt.want[i], g.Press(), "press %d at %.1fs", i, p)
			}
		})
	}
}

func TestHotkeyGuardReset(t *testing.T) {
	clock := &fakeClock{}
	g := NewHotkeyGuard(0, 0, clock.now)

	g.Press()
	g.Press()
	assert.Equal(t, 2, g.Count())

	g.Reset()
	assert.Equal(t, 0, g.Count())
	assert.False(t, g.Press())
}
