package quadtree

import (
	"fmt"
	"math"
)

// Particle is a weighted point. Weight is a mass or a charge depending on the
// force law applied to interaction pairs.
type Particle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Weight float64 `json:"weight"`
}

// NewParticle returns a particle at (x, y) with weight 1.
func NewParticle(x, y float64) Particle {
	return Particle{X: x, Y: y, Weight: 1}
}

// Dist returns the Euclidean distance between p and o.
func (p Particle) Dist(o Particle) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func (p Particle) String() string {
	return fmt.Sprintf("Point(x=%g, y=%g, q=%g)", p.X, p.Y, p.Weight)
}

// Pair is one interaction target found for a source particle. Partner is
// either a stored particle or, when Virtual is set, the centroid standing in
// for a whole subtree.
type Pair struct {
	Source  Particle `json:"source"`
	Partner Particle `json:"partner"`
	Virtual bool     `json:"virtual"`
}
