package quadtree

// aggregate recomputes the centroid of every node under n, children first.
func (n *Node) aggregate() {
	if n.IsLeaf() {
		if n.particle == nil {
			n.centroid = nil
			return
		}
		c := *n.particle
		n.centroid = &c
		return
	}

	var totalWeight, weightedX, weightedY float64
	for _, child := range n.children {
		if child == nil {
			continue
		}
		child.aggregate()
		if child.centroid == nil {
			continue
		}
		g := child.centroid
		totalWeight += g.Weight
		weightedX += g.X * g.Weight
		weightedY += g.Y * g.Weight
	}

	// No weight means no centroid, never a NaN.
	if totalWeight > 0 {
		n.centroid = &Particle{
			X:      weightedX / totalWeight,
			Y:      weightedY / totalWeight,
			Weight: totalWeight,
		}
	} else {
		n.centroid = nil
	}
}
