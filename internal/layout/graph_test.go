package layout

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestNewGraph_InvalidEdges(t *testing.T) {
	tests := []struct {
		name string
		edge Edge
	}{
		{"from out of range", Edge{From: 3, To: 0}},
		{"to out of range", Edge{From: 0, To: 3}},
		{"negative index", Edge{From: -1, To: 0}},
		{"self loop", Edge{From: 1, To: 1}},
		{"negative weight", Edge{From: 0, To: 1, Weight: -2}},
		{"NaN weight", Edge{From: 0, To: 1, Weight: math.NaN()}},
		{"infinite weight", Edge{From: 0, To: 1, Weight: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(3, []Edge{tt.edge})
			if !errors.Is(err, ErrInvalidEdge) {
				t.Errorf("expected ErrInvalidEdge, got %v", err)
			}
		})
	}

	if _, err := NewGraph(-1, nil); err == nil {
		t.Error("expected error for negative node count")
	}
}

func TestNewGraph_DedupesEdges(t *testing.T) {
	g, err := NewGraph(3, []Edge{
		{From: 0, To: 1},
		{From: 1, To: 2, Weight: 2},
		{From: 1, To: 0, Weight: 5},
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	edges := g.Edges()
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges after dedupe, got %d: %v", len(edges), edges)
	}
	if edges[0].From != 0 || edges[0].To != 1 || edges[0].Weight != 5 {
		t.Errorf("expected first edge 0-1 with last weight 5, got %+v", edges[0])
	}
	if edges[1].Weight != 2 {
		t.Errorf("expected second edge weight 2, got %v", edges[1].Weight)
	}
	if g.Len() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Len())
	}
}

func TestGraph_Distances(t *testing.T) {
	// 0-1-2 path plus an isolated node 3
	g, err := NewGraph(4, []Edge{{From: 0, To: 1}, {From: 1, To: 2, Weight: 2}})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	d := g.Distances()

	want := map[[2]int]float64{
		{0, 0}: 0,
		{0, 1}: 1,
		{0, 2}: 3,
		{2, 0}: 3,
		{1, 2}: 2,
	}
	for k, w := range want {
		if got := d[k[0]][k[1]]; got != w {
			t.Errorf("d[%d][%d] = %v, want %v", k[0], k[1], got, w)
		}
	}
	if !math.IsInf(d[0][3], 1) {
		t.Errorf("expected unreachable pair to be +Inf, got %v", d[0][3])
	}
}

func TestGraph_EdgeDistancesUsesShortestPath(t *testing.T) {
	// The heavy 0-3 edge is bypassed by the unit path 0-1-2-3.
	g, err := NewGraph(4, []Edge{
		{From: 0, To: 1},
		{From: 1, To: 2},
		{From: 2, To: 3},
		{From: 0, To: 3, Weight: 10},
	})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	got, err := g.EdgeDistances(context.Background(), 2)
	if err != nil {
		t.Fatalf("EdgeDistances: %v", err)
	}
	want := []float64{1, 1, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d distance = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGraph_EdgeDistancesLargeGraph(t *testing.T) {
	n := allPairsLimit + 88
	edges := make([]Edge, 0, n)
	for i := 0; i+1 < n; i++ {
		edges = append(edges, Edge{From: i, To: i + 1})
	}
	edges = append(edges, Edge{From: 0, To: n - 1, Weight: 10_000})

	g, err := NewGraph(n, edges)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	got, err := g.EdgeDistances(context.Background(), 4)
	if err != nil {
		t.Fatalf("EdgeDistances: %v", err)
	}
	for i := 0; i+1 < n; i++ {
		if got[i] != 1 {
			t.Fatalf("path edge %d distance = %v, want 1", i, got[i])
		}
	}
	if last := got[len(got)-1]; last != float64(n-1) {
		t.Errorf("shortcut distance = %v, want %d", last, n-1)
	}
}

func TestGraph_EdgeDistancesCanceled(t *testing.T) {
	n := allPairsLimit + 1
	edges := []Edge{{From: 0, To: 1}, {From: 2, To: 3}}
	g, err := NewGraph(n, edges)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.EdgeDistances(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
