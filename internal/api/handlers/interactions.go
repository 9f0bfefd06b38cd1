package handlers

import (
	"math"
	"net/http"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/middleware"
	"github.com/onnwee/bhtree/internal/quadtree"
)

// InteractionsRequest is the body of POST /api/interactions. Sources
// defaults to the particles themselves; Theta defaults to the server value.
type InteractionsRequest struct {
	Boundary  *quadtree.Boundary  `json:"boundary,omitempty"`
	Particles []quadtree.Particle `json:"particles"`
	Sources   []quadtree.Particle `json:"sources,omitempty"`
	Theta     *float64            `json:"theta,omitempty"`
	CountOnly bool                `json:"count_only,omitempty"`
}

// SourceInteractions lists the partners found for one source.
type SourceInteractions struct {
	Source  quadtree.Particle `json:"source"`
	Count   int               `json:"count"`
	Virtual int               `json:"virtual"`
	Pairs   []quadtree.Pair   `json:"pairs,omitempty"`
}

// InteractionsResponse is the reply to POST /api/interactions.
type InteractionsResponse struct {
	Theta   float64              `json:"theta"`
	Stats   quadtree.Stats       `json:"stats"`
	Total   int                  `json:"total"`
	Results []SourceInteractions `json:"results"`
}

// Interactions returns a handler that builds a tree from the posted
// particles and answers a Barnes-Hut interaction query per source.
// POST /api/interactions
func Interactions(cfg TreeConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InteractionsRequest
		if apiErr := middleware.DecodeJSON(r, &req); apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		theta := cfg.Theta
		if req.Theta != nil {
			theta = *req.Theta
		}
		if math.IsNaN(theta) || theta <= 0 {
			apierr.WriteErrorWithContext(w, r, apierr.TreeInvalidTheta())
			return
		}

		tree, apiErr := buildTree(cfg, req.Boundary, req.Particles)
		if apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		sources := req.Sources
		if len(sources) == 0 {
			sources = req.Particles
		} else {
			if cfg.MaxParticles > 0 && len(sources) > cfg.MaxParticles {
				apierr.WriteErrorWithContext(w, r, apierr.TreeTooLarge(cfg.MaxParticles))
				return
			}
			if apiErr := checkParticles(sources); apiErr != nil {
				apiErr.Details["field"] = "sources"
				apierr.WriteErrorWithContext(w, r, apiErr)
				return
			}
		}

		resp := InteractionsResponse{
			Theta:   theta,
			Stats:   tree.Stats(),
			Results: make([]SourceInteractions, 0, len(sources)),
		}
		for _, src := range sources {
			if err := r.Context().Err(); err != nil {
				apierr.WriteErrorWithContext(w, r, toAPIError(err))
				return
			}
			pairs, err := tree.InteractionsFor(src, theta)
			if err != nil {
				apierr.WriteErrorWithContext(w, r, toAPIError(err))
				return
			}
			metrics.QuadtreeInteractionsPerQuery.Observe(float64(len(pairs)))

			res := SourceInteractions{Source: src, Count: len(pairs)}
			for _, p := range pairs {
				if p.Virtual {
					res.Virtual++
				}
			}
			if !req.CountOnly {
				res.Pairs = pairs
			}
			resp.Total += len(pairs)
			resp.Results = append(resp.Results, res)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
