package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func moveTo(e *EdgeDetector, x, y int) {
	cx, cy := e.Position()
	e.Update(x-cx, y-cy)
}

func TestEdgeDetectorStartsCentered(t *testing.T) {
	e := NewEdgeDetector(1920, 1080, 5, 20)
	x, y := e.Position()
	assert.Equal(t, 960, x)
	assert.Equal(t, 540, y)
	assert.Equal(t, EdgeNone, e.Check())
}

func TestEdgeDetectorClamps(t *testing.T) {
	e := NewEdgeDetector(100, 50, 5, 20)
	e.Update(-1000, 1000)
	x, y := e.Position()
	assert.Equal(t, 0, x)
	assert.Equal(t, 49, y)
}

func TestEdgeDetectorReportsEachEdge(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		want Edge
	}{
		{"left", 0, 540, EdgeLeft},
		{"right", 1919, 540, EdgeRight},
		{"top", 960, 2, EdgeTop},
		{"bottom", 960, 1076, EdgeBottom},
		{"just outside left", 5, 540, EdgeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEdgeDetector(1920, 1080, 5, 20)
			moveTo(e, tt.x, tt.y)
			assert.Equal(t, tt.want, e.Check())
		})
	}
}

func TestEdgeHysteresis(t *testing.T) {
	const threshold, margin = 5, 20
	e := NewEdgeDetector(1920, 1080, threshold, margin)

	moveTo(e, threshold+10, 540)
	assert.Equal(t, EdgeNone, e.Check())

	hits := 0
	for i := 0; i < 10; i++ {
		moveTo(e, threshold-1, 540)
		if e.Check() == EdgeLeft {
			hits++
		}
		moveTo(e, threshold+1, 540)
		assert.Equal(t, EdgeNone, e.Check())
	}
	assert.Equal(t, 1, hits, "oscillating near the edge reports once")
	assert.True(t, e.Blocked(EdgeLeft))

	moveTo(e, threshold+margin, 540)
	e.Check()
	assert.True(t, e.Blocked(EdgeLeft), "reaching the unblock position is not enough")

	moveTo(e, threshold+margin+1, 540)
	e.Check()
	assert.False(t, e.Blocked(EdgeLeft))

	moveTo(e, threshold-1, 540)
	assert.Equal(t, EdgeLeft, e.Check())
}

func TestEnterRemoteBlocksAndRecenters(t *testing.T) {
	e := NewEdgeDetector(1920, 1080, 5, 20)
	moveTo(e, 0, 540)
	assert.Equal(t, EdgeLeft, e.Check())

	e.EnterRemote()
	x, y := e.Position()
	assert.Equal(t, 960, x)
	assert.Equal(t, 540, y)
	for _, edge := range edges {
		assert.True(t, e.Blocked(edge), edge.String())
	}

	// leaving the center unblocks every edge, then the right edge fires
	e.Update(1, 0)
	assert.Equal(t, EdgeNone, e.Check())
	moveTo(e, 1919, 540)
	assert.Equal(t, EdgeRight, e.Check())
}

func TestEnterLocalDoesNotRefireParkedEdge(t *testing.T) {
	e := NewEdgeDetector(1920, 1080, 5, 20)
	e.EnterRemote()
	e.Update(1, 0)
	e.Check()
	moveTo(e, 0, 540)
	assert.Equal(t, EdgeLeft, e.Check())

	e.EnterLocal()
	assert.False(t, e.Blocked(EdgeLeft))

	e.Update(-3, 0)
	assert.Equal(t, EdgeNone, e.Check(), "cursor parked in the zone must leave it first")

	moveTo(e, 10, 540)
	assert.Equal(t, EdgeNone, e.Check())
	moveTo(e, 1, 540)
	assert.Equal(t, EdgeLeft, e.Check())
}

func TestParseEdge(t *testing.T) {
	e, ok := ParseEdge("left")
	assert.True(t, ok)
	assert.Equal(t, EdgeLeft, e)

	e, ok = ParseEdge("any")
	assert.True(t, ok)
	assert.Equal(t, EdgeNone, e)

	_, ok = ParseEdge("diagonal")
	assert.False(t, ok)
}
