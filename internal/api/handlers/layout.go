package handlers

import (
	"context"
	"net/http"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/middleware"
)

// LayoutComputer computes graph layouts. *layout.Service implements it.
type LayoutComputer interface {
	Compute(ctx context.Context, req layout.Request) (*layout.Output, error)
}

// ComputeLayout returns a handler that lays out the posted graph. The
// X-Cache header tells whether the result came from the cache.
// POST /api/layout
func ComputeLayout(svc LayoutComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req layout.Request
		if apiErr := middleware.DecodeJSON(r, &req); apiErr != nil {
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		out, err := svc.Compute(r.Context(), req)
		if err != nil {
			apiErr := toAPIError(err)
			if apiErr.Status() >= http.StatusInternalServerError {
				logger.WithRequestID(r.Context()).Error("layout failed", "error", err, "nodes", req.Nodes)
			}
			apierr.WriteErrorWithContext(w, r, apiErr)
			return
		}

		if out.Cached {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		writeJSON(w, http.StatusOK, out)
	}
}
