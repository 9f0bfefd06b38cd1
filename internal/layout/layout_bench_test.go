package layout

import (
	"context"
	"fmt"
	"testing"

	"github.com/onnwee/bhtree/internal/forces"
	"github.com/onnwee/bhtree/internal/particles"
	"github.com/onnwee/bhtree/internal/quadtree"
)

// BenchmarkStep measures one layout iteration on ring graphs of growing size.
func BenchmarkStep(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		g := ringGraph(b, n)
		l, err := New(context.Background(), g, Options{Seed: 1})
		if err != nil {
			b.Fatalf("New: %v", err)
		}
		b.Run(fmt.Sprintf("N=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := l.Step(context.Background(), 0.5); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBarnesHutVsBruteForce compares tree-approximated repulsion with
// the exact all-pairs sum.
func BenchmarkBarnesHutVsBruteForce(b *testing.B) {
	for _, n := range []int{100, 1000, 2000} {
		bounds := quadtree.Boundary{W: 100, H: 100}
		ps := particles.Uniform(particles.NewRand(1), n, bounds, 1)
		law := forces.Repulsion(-1, -1)

		b.Run(fmt.Sprintf("BarnesHut_N=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				tree := quadtree.New(bounds)
				tree.InsertAll(ps)
				tree.Aggregate()
				for _, p := range ps {
					pairs, err := tree.InteractionsFor(p, 0.5)
					if err != nil {
						b.Fatal(err)
					}
					forces.Sum(pairs, law, forces.DefaultMinDistance)
				}
			}
		})

		b.Run(fmt.Sprintf("BruteForce_N=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				for j := range ps {
					for k := range ps {
						if j != k {
							forces.Between(ps[j], ps[k], law, forces.DefaultMinDistance)
						}
					}
				}
			}
		})
	}
}
