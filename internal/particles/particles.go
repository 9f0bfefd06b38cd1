// Package particles generates particle sets for simulations, demos and
// benchmarks.
package particles

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/onnwee/bhtree/internal/quadtree"
)

// ErrLengthMismatch is returned by FromXY when the coordinate slices differ in length.
var ErrLengthMismatch = errors.New("particles: x and y lengths differ")

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Uniform scatters n particles of the given weight uniformly over b.
func Uniform(rng *rand.Rand, n int, b quadtree.Boundary, weight float64) []quadtree.Particle {
	out := make([]quadtree.Particle, n)
	for i := range out {
		out[i] = quadtree.Particle{
			X:      b.X + rng.Float64()*b.W,
			Y:      b.Y + rng.Float64()*b.H,
			Weight: weight,
		}
	}
	return out
}

// Clusters places n unit-weight particles in k gaussian blobs whose centres are
// uniform over b. spread is the standard deviation as a fraction of the
// smaller side of b. Points are clamped into b so none are dropped on insert.
func Clusters(rng *rand.Rand, n, k int, b quadtree.Boundary, spread float64) []quadtree.Particle {
	if k < 1 {
		k = 1
	}
	centres := Uniform(rng, k, b, 1)
	sigma := spread * math.Min(b.W, b.H)

	out := make([]quadtree.Particle, n)
	for i := range out {
		c := centres[i%k]
		out[i] = quadtree.Particle{
			X:      clamp(c.X+rng.NormFloat64()*sigma, b.X, b.X+b.W),
			Y:      clamp(c.Y+rng.NormFloat64()*sigma, b.Y, b.Y+b.H),
			Weight: 1,
		}
	}
	return out
}

// FromXY pairs up coordinates into unit-weight particles.
func FromXY(xs, ys []float64) ([]quadtree.Particle, error) {
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	out := make([]quadtree.Particle, len(xs))
	for i := range xs {
		out[i] = quadtree.NewParticle(xs[i], ys[i])
	}
	return out, nil
}

// BoundsOf returns the smallest square enclosing ps, padded by 10% of its
// side, the way the graph layout sizes its tree. An empty or single-point set
// gets a unit square around its point.
func BoundsOf(ps []quadtree.Particle) quadtree.Boundary {
	if len(ps) == 0 {
		return quadtree.Boundary{W: 1, H: 1}
	}
	minX, maxX := ps[0].X, ps[0].X
	minY, maxY := ps[0].Y, ps[0].Y
	for _, p := range ps[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	side := math.Max(maxX-minX, maxY-minY)
	if side == 0 {
		return quadtree.Boundary{X: minX - 0.5, Y: minY - 0.5, W: 1, H: 1}
	}
	pad := side * 0.1
	side += 2 * pad
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	return quadtree.Boundary{X: cx - side/2, Y: cy - side/2, W: side, H: side}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
