package quadtree

import (
	"fmt"
	"math"
)

// Boundary is an axis-aligned rectangle given by its origin and size.
// Y grows downward, so the origin is the top-left corner.
type Boundary struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns W*H.
func (b Boundary) Area() float64 {
	return b.W * b.H
}

// Contains reports whether p lies inside b. All four edges are inclusive.
func (b Boundary) Contains(p Particle) bool {
	return b.X <= p.X && p.X <= b.X+b.W &&
		b.Y <= p.Y && p.Y <= b.Y+b.H
}

// Valid reports whether b has finite coordinates and a positive size.
// The tree does not call this; it is for callers validating external input.
func (b Boundary) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.W > 0 && b.H > 0
}

// Mid returns the midlines used for quadrant selection.
func (b Boundary) Mid() (midX, midY float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Quadrant returns the sub-rectangle of b for quadrant q.
func (b Boundary) Quadrant(q Quadrant) Boundary {
	halfW := b.W / 2
	halfH := b.H / 2
	switch q {
	case TopRight:
		return Boundary{X: b.X + halfW, Y: b.Y, W: halfW, H: halfH}
	case BottomLeft:
		return Boundary{X: b.X, Y: b.Y + halfH, W: halfW, H: halfH}
	case BottomRight:
		return Boundary{X: b.X + halfW, Y: b.Y + halfH, W: halfW, H: halfH}
	default:
		return Boundary{X: b.X, Y: b.Y, W: halfW, H: halfH}
	}
}

// QuadrantOf returns the quadrant owning p. Points on a midline belong to the
// right or bottom half.
func (b Boundary) QuadrantOf(p Particle) Quadrant {
	midX, midY := b.Mid()
	left := p.X < midX
	top := p.Y < midY
	switch {
	case top && left:
		return TopLeft
	case top:
		return TopRight
	case left:
		return BottomLeft
	default:
		return BottomRight
	}
}

func (b Boundary) String() string {
	return fmt.Sprintf("Boundary(x=%g, y=%g, w=%g, h=%g)", b.X, b.Y, b.W, b.H)
}

// Quadrant names one of the four child slots of a node.
type Quadrant int

const (
	TopLeft Quadrant = iota
	TopRight
	BottomLeft
	BottomRight
)

// Quadrants lists every quadrant in traversal order.
var Quadrants = [4]Quadrant{TopLeft, TopRight, BottomLeft, BottomRight}

func (q Quadrant) String() string {
	switch q {
	case TopLeft:
		return "TL"
	case TopRight:
		return "TR"
	case BottomLeft:
		return "BL"
	case BottomRight:
		return "BR"
	default:
		return fmt.Sprintf("Quadrant(%d)", int(q))
	}
}
