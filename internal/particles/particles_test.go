package particles

import (
	"errors"
	"testing"

	"github.com/onnwee/bhtree/internal/quadtree"
)

func TestUniformStaysInBounds(t *testing.T) {
	b := quadtree.Boundary{X: -10, Y: 5, W: 20, H: 30}
	ps := Uniform(NewRand(1), 1000, b, 2)
	if len(ps) != 1000 {
		t.Fatalf("expected 1000 particles, got %d", len(ps))
	}
	for i, p := range ps {
		if !b.Contains(p) {
			t.Fatalf("particle %d %v outside %v", i, p, b)
		}
		if p.Weight != 2 {
			t.Fatalf("particle %d weight %v, want 2", i, p.Weight)
		}
	}
}

func TestUniformIsDeterministic(t *testing.T) {
	b := quadtree.Boundary{W: 1, H: 1}
	a := Uniform(NewRand(99), 50, b, 1)
	c := Uniform(NewRand(99), 50, b, 1)
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("same seed produced different particle %d: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestClustersClampIntoBounds(t *testing.T) {
	b := quadtree.Boundary{W: 10, H: 10}
	ps := Clusters(NewRand(3), 500, 4, b, 0.5)
	for i, p := range ps {
		if !b.Contains(p) {
			t.Fatalf("particle %d %v outside %v", i, p, b)
		}
	}

	tree := quadtree.New(b)
	tree.InsertAll(ps)
	if s := tree.Stats(); s.Dropped != 0 {
		t.Errorf("expected no dropped particles, got %d", s.Dropped)
	}
}

func TestFromXY(t *testing.T) {
	ps, err := FromXY([]float64{1, 2}, []float64{3, 4})
	if err != nil {
		t.Fatalf("FromXY: %v", err)
	}
	if ps[1] != quadtree.NewParticle(2, 4) {
		t.Errorf("unexpected particle %v", ps[1])
	}

	if _, err := FromXY([]float64{1}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestBoundsOf(t *testing.T) {
	tests := []struct {
		name string
		ps   []quadtree.Particle
		want quadtree.Boundary
	}{
		{"empty", nil, quadtree.Boundary{W: 1, H: 1}},
		{"single point", []quadtree.Particle{quadtree.NewParticle(3, 4)}, quadtree.Boundary{X: 2.5, Y: 3.5, W: 1, H: 1}},
		{
			"wide set is squared and padded",
			[]quadtree.Particle{quadtree.NewParticle(0, 0), quadtree.NewParticle(100, 50)},
			quadtree.Boundary{X: -10, Y: -35, W: 120, H: 120},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BoundsOf(tt.ps)
			if got != tt.want {
				t.Errorf("BoundsOf() = %v, want %v", got, tt.want)
			}
			for _, p := range tt.ps {
				if !got.Contains(p) {
					t.Errorf("%v not inside %v", p, got)
				}
			}
		})
	}
}
