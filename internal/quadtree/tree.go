// Package quadtree implements the adaptive quadtree behind Barnes-Hut style
// interaction queries.
//
// Use is three-phase: insert every particle, aggregate once, then query as
// often as needed. Inserting after aggregation makes the tree stale and
// queries fail with ErrNotAggregated until Aggregate runs again.
package quadtree

import (
	"errors"
	"math"
)

const (
	// DefaultMergeThreshold is the distance below which two particles are
	// treated as the same physical particle.
	DefaultMergeThreshold = 0.001

	// DefaultSelfEpsilon is the distance below which a query treats a
	// subtree as the source particle itself.
	DefaultSelfEpsilon = 0.001

	// DefaultMaxDepth caps subdivision. A leaf at this depth force-merges
	// particles it cannot separate.
	DefaultMaxDepth = 48
)

var (
	// ErrNotAggregated is returned by queries on a tree whose centroids are
	// missing or stale.
	ErrNotAggregated = errors.New("quadtree: tree not aggregated since last insert")

	// ErrInvalidTheta is returned for a non-positive or NaN opening angle.
	ErrInvalidTheta = errors.New("quadtree: theta must be > 0")
)

// ForcedMerge describes a particle absorbed by a leaf at the depth cap.
type ForcedMerge struct {
	Depth    int
	Stored   Particle // the leaf particle before the merge
	Incoming Particle
}

// Config holds tree-wide settings. Zero values take the package defaults.
type Config struct {
	MergeThreshold float64
	MaxDepth       int
	SelfEpsilon    float64

	// OnForcedMerge, if set, is called synchronously for every forced merge.
	OnForcedMerge func(ForcedMerge)
}

func (c Config) withDefaults() Config {
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = DefaultMergeThreshold
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.SelfEpsilon <= 0 {
		c.SelfEpsilon = DefaultSelfEpsilon
	}
	return c
}

// Stats summarises inserts and the current shape of a tree.
type Stats struct {
	Inserted     int `json:"inserted"`
	Merged       int `json:"merged"`
	ForcedMerges int `json:"forced_merges"`
	Dropped      int `json:"dropped"`
	Nodes        int `json:"nodes"`
	Leaves       int `json:"leaves"`
	MaxDepth     int `json:"max_depth"`
}

// Tree owns a root node and tracks whether its centroids are current.
// A Tree is not safe for concurrent mutation. Once aggregated, concurrent
// InteractionsFor calls are safe as long as nothing inserts.
type Tree struct {
	root       *Node
	cfg        Config
	aggregated bool

	inserted, merged, forced, dropped int
}

// New returns an empty tree covering bounds with default settings.
func New(bounds Boundary) *Tree {
	return NewWithConfig(bounds, Config{})
}

// NewWithConfig returns an empty tree covering bounds.
func NewWithConfig(bounds Boundary, cfg Config) *Tree {
	t := &Tree{cfg: cfg.withDefaults()}
	t.root = newNode(bounds, 0, &t.cfg)
	return t
}

// Config returns the effective settings.
func (t *Tree) Config() Config { return t.cfg }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Bounds returns the root boundary.
func (t *Tree) Bounds() Boundary { return t.root.bounds }

// Insert adds p to the tree. A particle outside the root boundary is
// silently dropped.
func (t *Tree) Insert(p Particle) {
	switch t.root.insert(p) {
	case outcomeDropped:
		t.dropped++
		return
	case outcomeStored:
		t.inserted++
	case outcomeMerged:
		t.merged++
	case outcomeForcedMerge:
		t.forced++
	}
	t.aggregated = false
}

// InsertAll inserts every particle in ps.
func (t *Tree) InsertAll(ps []Particle) {
	for _, p := range ps {
		t.Insert(p)
	}
}

// Aggregate recomputes every centroid bottom-up. Calling it again on an
// unmodified tree yields identical centroids.
func (t *Tree) Aggregate() {
	t.root.aggregate()
	t.aggregated = true
}

// Aggregated reports whether centroids reflect every insert so far.
func (t *Tree) Aggregated() bool { return t.aggregated }

// Centroid returns the centroid of the whole tree.
func (t *Tree) Centroid() (Particle, bool) {
	if !t.aggregated {
		return Particle{}, false
	}
	return t.root.Centroid()
}

// InteractionsFor returns the real or virtual partners of src in
// depth-first TL, TR, BL, BR order.
func (t *Tree) InteractionsFor(src Particle, theta float64) ([]Pair, error) {
	if !t.aggregated {
		return nil, ErrNotAggregated
	}
	if math.IsNaN(theta) || theta <= 0 {
		return nil, ErrInvalidTheta
	}
	return t.root.collect(src, theta, t.cfg.SelfEpsilon, nil), nil
}

// Walk visits nodes in pre-order. The root is reported with quadrant -1.
// Returning false from fn skips the node's children.
func (t *Tree) Walk(fn func(n *Node, q Quadrant) bool) {
	walk(t.root, Quadrant(-1), fn)
}

func walk(n *Node, q Quadrant, fn func(*Node, Quadrant) bool) {
	if !fn(n, q) {
		return
	}
	for _, cq := range Quadrants {
		if c := n.children[cq]; c != nil {
			walk(c, cq, fn)
		}
	}
}

// Len returns the number of leaves holding a particle.
func (t *Tree) Len() int {
	count := 0
	t.Walk(func(n *Node, _ Quadrant) bool {
		if n.particle != nil {
			count++
		}
		return true
	})
	return count
}

// Stats returns insert counters and the current shape of the tree.
func (t *Tree) Stats() Stats {
	s := Stats{
		Inserted:     t.inserted,
		Merged:       t.merged,
		ForcedMerges: t.forced,
		Dropped:      t.dropped,
	}
	t.Walk(func(n *Node, _ Quadrant) bool {
		s.Nodes++
		if n.IsLeaf() {
			s.Leaves++
		}
		if n.depth > s.MaxDepth {
			s.MaxDepth = n.depth
		}
		return true
	})
	return s
}
