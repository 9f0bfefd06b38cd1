package quadtree

import "fmt"

// Node is a quadtree node. A leaf stores at most one particle; an internal
// node stores none and owns up to four lazily created children.
type Node struct {
	bounds   Boundary
	particle *Particle
	centroid *Particle
	children [4]*Node
	depth    int

	// Shared, read-only tree settings.
	cfg *Config
}

// outcome records what an insert did to the tree.
type outcome int

const (
	outcomeDropped outcome = iota
	outcomeStored
	outcomeMerged
	outcomeForcedMerge
)

func newNode(bounds Boundary, depth int, cfg *Config) *Node {
	return &Node{bounds: bounds, depth: depth, cfg: cfg}
}

// Bounds returns the region covered by the node.
func (n *Node) Bounds() Boundary { return n.bounds }

// Depth returns the distance from the root; the root is at depth 0.
func (n *Node) Depth() int { return n.depth }

// Particle returns the stored particle of a leaf.
func (n *Node) Particle() (Particle, bool) {
	if n.particle == nil {
		return Particle{}, false
	}
	return *n.particle, true
}

// Centroid returns the aggregated weighted centroid of the subtree. It is
// absent until the tree is aggregated and stale after further inserts.
func (n *Node) Centroid() (Particle, bool) {
	if n.centroid == nil {
		return Particle{}, false
	}
	return *n.centroid, true
}

// IsLeaf reports whether none of the four children exist.
func (n *Node) IsLeaf() bool {
	return n.children[TopLeft] == nil && n.children[TopRight] == nil &&
		n.children[BottomLeft] == nil && n.children[BottomRight] == nil
}

// Child returns the child in quadrant q, or nil.
func (n *Node) Child(q Quadrant) *Node {
	return n.children[q]
}

// Children returns the present children in TL, TR, BL, BR order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, 4)
	for _, c := range n.children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// childFor returns the child owning p, creating it if absent.
func (n *Node) childFor(p Particle) *Node {
	q := n.bounds.QuadrantOf(p)
	if n.children[q] == nil {
		n.children[q] = newNode(n.bounds.Quadrant(q), n.depth+1, n.cfg)
	}
	return n.children[q]
}

// insert places p in the subtree rooted at n, dropping it if n does not
// contain it.
func (n *Node) insert(p Particle) outcome {
	if !n.bounds.Contains(p) {
		return outcomeDropped
	}
	return n.place(p)
}

// place assumes n contains p. Containment is only checked on entry: a child's
// far edge is x+w/2+w/2, which can round below the parent's x+w.
func (n *Node) place(p Particle) outcome {
	if !n.IsLeaf() {
		return n.childFor(p).place(p)
	}

	if n.particle == nil {
		stored := p
		n.particle = &stored
		return outcomeStored
	}

	existing := n.particle
	if existing.Dist(p) < n.cfg.MergeThreshold {
		existing.Weight += p.Weight
		return outcomeMerged
	}

	// Past the depth cap the leaf absorbs the particle instead of splitting.
	if n.depth >= n.cfg.MaxDepth {
		before := *existing
		existing.Weight += p.Weight
		if n.cfg.OnForcedMerge != nil {
			n.cfg.OnForcedMerge(ForcedMerge{Depth: n.depth, Stored: before, Incoming: p})
		}
		return outcomeForcedMerge
	}

	// Convert to an internal node and push both particles down.
	n.particle = nil
	n.childFor(*existing).place(*existing)
	return n.childFor(p).place(p)
}

// String summarises the node on two lines.
func (n *Node) String() string {
	info := fmt.Sprintf("Node @ %v\n", n.bounds)
	if n.IsLeaf() {
		return info + "└─ Leaf Node | Point: " + formatOptional(n.particle)
	}
	info += "├─ Internal Node | Gravity Point: " + formatOptional(n.centroid) + "\n"
	return info + fmt.Sprintf("└─ Children: %d", len(n.Children()))
}

func formatOptional(p *Particle) string {
	if p == nil {
		return "<none>"
	}
	return p.String()
}
