// Package forces turns interaction pairs into force vectors.
package forces

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/bhtree/internal/quadtree"
)

// DefaultMinDistance keeps near-coincident pairs from producing huge forces.
const DefaultMinDistance = 0.001

// Law returns the signed magnitude of the force on src from partner when they
// are d apart. Positive values pull src toward partner, negative values push
// it away.
type Law func(src, partner quadtree.Particle, d float64) float64

// Gravity is attraction proportional to g·m_src·m_partner/d².
func Gravity(g float64) Law {
	return func(src, partner quadtree.Particle, d float64) float64 {
		return g * src.Weight * partner.Weight / (d * d)
	}
}

// Coulomb is repulsion between like charges, k·q_src·q_partner/d².
func Coulomb(k float64) Law {
	return func(src, partner quadtree.Particle, d float64) float64 {
		return -k * src.Weight * partner.Weight / (d * d)
	}
}

// Repulsion is the force-directed-placement repulsion weight·d^alpha, scaled by
// the partner's weight so a virtual partner counts for every particle it
// stands in for. weight is normally negative.
func Repulsion(weight, alpha float64) Law {
	return func(_, partner quadtree.Particle, d float64) float64 {
		return weight * math.Pow(d, alpha) * partner.Weight
	}
}

// Quotient returns weight·d^alpha / g^beta, where d is the spatial distance
// and g the graph distance between two nodes.
func Quotient(weight, alpha, beta float64) func(d, graphDist float64) float64 {
	return func(d, graphDist float64) float64 {
		return weight * math.Pow(d, alpha) / math.Pow(graphDist, beta)
	}
}

// Between returns the force on src from partner under law. The distance is
// clamped below at minDist; coincident particles exert no force since they
// have no direction.
func Between(src, partner quadtree.Particle, law Law, minDist float64) r2.Vec {
	v := r2.Vec{X: partner.X - src.X, Y: partner.Y - src.Y}
	d := r2.Norm(v)
	if d == 0 {
		return r2.Vec{}
	}
	unit := r2.Scale(1/d, v)
	return r2.Scale(law(src, partner, math.Max(minDist, d)), unit)
}

// Sum adds up the force of every pair on its source.
func Sum(pairs []quadtree.Pair, law Law, minDist float64) r2.Vec {
	var f r2.Vec
	for _, p := range pairs {
		f = r2.Add(f, Between(p.Source, p.Partner, law, minDist))
	}
	return f
}
