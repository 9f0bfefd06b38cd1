package layout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrInvalidEdge is returned for edges that reference missing nodes, loop
// back onto their own node, or carry a non-positive or non-finite weight.
var ErrInvalidEdge = errors.New("layout: invalid edge")

// allPairsLimit is the largest graph for which edge distances come from a
// full Floyd-Warshall matrix. Larger graphs run Dijkstra per edge source.
const allPairsLimit = 512

// Edge joins two nodes by index. A zero Weight means 1.
type Edge struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Weight float64 `json:"weight,omitempty"`
}

// Graph is an undirected weighted graph over nodes 0..n-1.
type Graph struct {
	n     int
	edges []Edge
	g     *simple.WeightedUndirectedGraph
}

// NewGraph builds a graph of n nodes. A repeated edge keeps its first
// position and its last weight.
func NewGraph(n int, edges []Edge) (*Graph, error) {
	if n < 0 {
		return nil, fmt.Errorf("layout: negative node count %d", n)
	}
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	seen := make(map[[2]int]int, len(edges))
	out := make([]Edge, 0, len(edges))
	for i, e := range edges {
		if e.Weight == 0 {
			e.Weight = 1
		}
		if err := validEdge(n, e); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		key := [2]int{min(e.From, e.To), max(e.From, e.To)}
		if j, ok := seen[key]; ok {
			out[j].Weight = e.Weight
		} else {
			seen[key] = len(out)
			out = append(out, e)
		}
		g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.Weight))
	}

	return &Graph{n: n, edges: out, g: g}, nil
}

func validEdge(n int, e Edge) error {
	switch {
	case e.From < 0 || e.From >= n || e.To < 0 || e.To >= n:
		return fmt.Errorf("%w: %d-%d outside 0..%d", ErrInvalidEdge, e.From, e.To, n-1)
	case e.From == e.To:
		return fmt.Errorf("%w: self loop on %d", ErrInvalidEdge, e.From)
	case e.Weight <= 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0):
		return fmt.Errorf("%w: weight %v", ErrInvalidEdge, e.Weight)
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return g.n }

// Edges returns the deduplicated edges.
func (g *Graph) Edges() []Edge { return g.edges }

// Distances returns the all-pairs shortest-path matrix. Unreachable pairs are
// +Inf and the diagonal is 0. It costs O(n³).
func (g *Graph) Distances() [][]float64 {
	paths, _ := path.FloydWarshall(g.g) // weights are positive, so no negative cycles
	d := make([][]float64, g.n)
	for i := range d {
		d[i] = make([]float64, g.n)
		for j := range d[i] {
			d[i][j] = paths.Weight(int64(i), int64(j))
		}
	}
	return d
}

// EdgeDistances returns the shortest-path distance between the endpoints of
// each edge, in Edges order. With positive weights it never exceeds the
// edge's own weight.
func (g *Graph) EdgeDistances(ctx context.Context, workers int) ([]float64, error) {
	out := make([]float64, len(g.edges))
	if len(g.edges) == 0 {
		return out, nil
	}

	if g.n <= allPairsLimit {
		d := g.Distances()
		for i, e := range g.edges {
			out[i] = d[e.From][e.To]
		}
		return out, nil
	}

	bySource := make(map[int][]int)
	for i, e := range g.edges {
		bySource[e.From] = append(bySource[e.From], i)
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for src, idx := range bySource {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sp := path.DijkstraFrom(simple.Node(src), g.g)
			// each edge index belongs to exactly one source
			for _, i := range idx {
				out[i] = sp.WeightTo(int64(g.edges[i].To))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
