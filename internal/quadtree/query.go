package quadtree

// collect appends to pairs the interaction targets of src found under n.
//
// A subtree is far enough to stand in as one virtual particle when
// theta*d*d > area, which is the s/d < theta opening-angle test without the
// square root (s*s ~ area).
func (n *Node) collect(src Particle, theta, selfEpsilon float64, pairs []Pair) []Pair {
	if n.centroid == nil {
		return pairs
	}

	d := src.Dist(*n.centroid)
	if d < selfEpsilon {
		// The subtree is the source itself.
		return pairs
	}

	leaf := n.IsLeaf()
	if leaf || theta*d*d > n.bounds.Area() {
		return append(pairs, Pair{Source: src, Partner: *n.centroid, Virtual: !leaf})
	}

	for _, child := range n.children {
		if child != nil {
			pairs = child.collect(src, theta, selfEpsilon, pairs)
		}
	}
	return pairs
}
