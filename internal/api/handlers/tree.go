package handlers

import (
	"fmt"
	"math"
	"net/http"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/middleware"
	"github.com/onnwee/bhtree/internal/particles"
	"github.com/onnwee/bhtree/internal/quadtree"
)

// TreeConfig bounds tree requests and supplies their defaults.
type TreeConfig struct {
	MaxParticles int
	Theta        float64
	Tree         quadtree.Config
}

// TreeRequest is the body of POST /api/tree.
type TreeRequest struct {
	Boundary  *quadtree.Boundary  `json:"boundary,omitempty"`
	Particles []quadtree.Particle `json:"particles"`
	Dump      bool                `json:"dump,omitempty"`
}

// TreeResponse describes a built and aggregated tree.
type TreeResponse struct {
	Boundary quadtree.Boundary  `json:"boundary"`
	Stats    quadtree.Stats     `json:"stats"`
	Centroid *quadtree.Particle `json:"centroid,omitempty"`
	Dump     string             `json:"dump,omitempty"`
}

// checkParticles validates and normalizes request particles in place.
// A zero weight means 1.
func checkParticles(ps []quadtree.Particle) *apierr.Error {
	for i := range ps {
		p := &ps[i]
		if !finite(p.X) || !finite(p.Y) || !finite(p.Weight) || p.Weight < 0 {
			return apierr.ValidationInvalidValue("particles",
				fmt.Sprintf("particle %d must have finite coordinates and a non-negative weight", i)).
				WithDetails(map[string]interface{}{"field": "particles", "index": i})
		}
		if p.Weight == 0 {
			p.Weight = 1
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// buildTree inserts ps into a tree over boundary, or over the padded bounds
// of ps when boundary is nil, and aggregates it.
func buildTree(cfg TreeConfig, boundary *quadtree.Boundary, ps []quadtree.Particle) (*quadtree.Tree, *apierr.Error) {
	if cfg.MaxParticles > 0 && len(ps) > cfg.MaxParticles {
		return nil, apierr.TreeTooLarge(cfg.MaxParticles)
	}
	if apiErr := checkParticles(ps); apiErr != nil {
		return nil, apiErr
	}
	bounds := particles.BoundsOf(ps)
	if boundary != nil {
		if !boundary.Valid() {
			return nil, apierr.TreeInvalidBoundary("")
		}
		bounds = *boundary
	}

	tree := quadtree.NewWithConfig(bounds, cfg.Tree)
	tree.InsertAll(ps)
	tree.Aggregate()

	s := tree.Stats()
	metrics.QuadtreeInserts.WithLabelValues("stored").Add(float64(s.Inserted))
	metrics.QuadtreeInserts.WithLabelValues("merged").Add(float64(s.Merged))
	metrics.QuadtreeInserts.WithLabelValues("forced_merge").Add(float64(s.ForcedMerges))
	metrics.QuadtreeInserts.WithLabelValues("dropped").Add(float64(s.Dropped))
	return tree, nil
}

// BuildTree returns a handler that builds a quadtree from the posted
// particles and reports its shape.
// POST /api/tree
func BuildTree(cfg TreeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TreeRequest
		if apiErr := middleware.DecodeJSON(r, &req); apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}
		tree, apiErr := buildTree(cfg, req.Boundary, req.Particles)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		resp := TreeResponse{Boundary: tree.Bounds(), Stats: tree.Stats()}
		if c, ok := tree.Centroid(); ok {
			resp.Centroid = &c
		}
		if req.Dump {
			resp.Dump = quadtree.DumpString(tree.Root())
		}
		if resp.Stats.Dropped > 0 {
			logger.WithRequestID(r.Context()).Debug("particles outside boundary dropped",
				"dropped", resp.Stats.Dropped, "boundary", resp.Boundary.String())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
