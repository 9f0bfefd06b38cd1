package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/circuitbreaker"
	"github.com/onnwee/bhtree/internal/errorreporting"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/store"
)

// RunReader reads persisted layout runs. *store.Store implements it.
type RunReader interface {
	GetRun(ctx context.Context, id int64) (store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

func storeError(r *http.Request, err error) *apierr.Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apierr.ResourceNotFound("layout run")
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return apierr.SystemUnavailable("Run store temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierr.SystemTimeout("")
	}
	logger.WithRequestID(r.Context()).Error("run store query failed", "error", err)
	errorreporting.CaptureErrorWithContext(err, map[string]string{"route": r.URL.Path}, nil)
	return apierr.SystemDatabase("")
}

// ListRuns returns a handler listing recent runs without their positions.
// GET /api/layout/runs?limit=N
func ListRuns(rr RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rr == nil {
			apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Run storage is not configured"))
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("limit", "limit must be between 1 and 500"))
				return
			}
			limit = n
		}

		runs, err := rr.ListRuns(r.Context(), limit)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, storeError(r, err))
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
	}
}

// GetRun returns a handler for a single stored run, positions included.
// GET /api/layout/runs/{id}
func GetRun(rr RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rr == nil {
			apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Run storage is not configured"))
			return
		}
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id <= 0 {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("Run id must be a positive integer"))
			return
		}

		run, err := rr.GetRun(r.Context(), id)
		if err != nil {
			apierr.WriteErrorWithContext(w, r, storeError(r, err))
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}
