package input

import (
	"sync"
)

// Edge identifies a side of the virtual screen
type Edge int

const (
	EdgeNone Edge = iota
	EdgeLeft
	EdgeRight
	EdgeTop
	EdgeBottom
)

var edges = [...]Edge{EdgeLeft, EdgeRight, EdgeTop, EdgeBottom}

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	default:
		return "none"
	}
}

// ParseEdge converts a config value; "any" and "" map to EdgeNone
func ParseEdge(s string) (Edge, bool) {
	switch s {
	case "left":
		return EdgeLeft, true
	case "right":
		return EdgeRight, true
	case "top":
		return EdgeTop, true
	case "bottom":
		return EdgeBottom, true
	case "any", "":
		return EdgeNone, true
	}
	return EdgeNone, false
}

// EdgeDetector tracks a virtual cursor inside [0,width) x [0,height) and reports
// entry into an edge zone with hysteresis
type EdgeDetector struct {
	width     int
	height    int
	threshold int
	margin    int

	mu      sync.Mutex
	x, y    int
	blocked [5]bool
	inside  [5]bool
}

// NewEdgeDetector creates a detector with the cursor centered and all edges armed.
// An edge is reported when the cursor comes within threshold of it and re-armed once
// the cursor is more than threshold+margin away.
func NewEdgeDetector(width, height, threshold, margin int) *EdgeDetector {
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	if threshold <= 0 {
		threshold = 5 // Default 5 pixels
	}
	if margin <= 0 {
		margin = 20
	}

	return &EdgeDetector{
		width:     width,
		height:    height,
		threshold: threshold,
		margin:    margin,
		x:         width / 2,
		y:         height / 2,
	}
}

// Update moves the cursor by a relative delta, clamped to the screen
func (e *EdgeDetector) Update(dx, dy int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.x = clamp(e.x+dx, 0, e.width-1)
	e.y = clamp(e.y+dy, 0, e.height-1)
}

// Check returns the edge the cursor just entered, or EdgeNone.
// A reported edge stays blocked until the cursor moves past the unblock distance.
func (e *EdgeDetector) Check() Edge {
	e.mu.Lock()
	defer e.mu.Unlock()

	hit := EdgeNone
	for _, edge := range edges {
		d := e.distance(edge)
		wasInside := e.inside[edge]
		e.inside[edge] = d < e.threshold

		if d > e.threshold+e.margin {
			e.blocked[edge] = false
		}
		if hit != EdgeNone || !e.inside[edge] || wasInside || e.blocked[edge] {
			continue
		}
		e.blocked[edge] = true
		hit = edge
	}
	return hit
}

// EnterRemote recenters the cursor and blocks every edge
func (e *EdgeDetector) EnterRemote() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.x, e.y = e.width/2, e.height/2
	for _, edge := range edges {
		e.blocked[edge] = true
		e.inside[edge] = false
	}
}

// EnterLocal unblocks every edge. The cursor keeps its position, so an edge it
// already sits on fires only after the cursor leaves and re-enters that zone.
func (e *EdgeDetector) EnterLocal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, edge := range edges {
		e.blocked[edge] = false
	}
}

// Position returns the virtual cursor
func (e *EdgeDetector) Position() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.x, e.y
}

// Blocked reports whether an edge is currently blocked
func (e *EdgeDetector) Blocked(edge Edge) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blocked[edge]
}

func (e *EdgeDetector) distance(edge Edge) int {
	switch edge {
	case EdgeLeft:
		return e.x
	case EdgeRight:
		return e.width - 1 - e.x
	case EdgeTop:
		return e.y
	default:
		return e.height - 1 - e.y
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
