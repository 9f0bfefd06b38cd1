package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/quadtree"
	"github.com/onnwee/bhtree/internal/store"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// toAPIError maps domain errors onto structured API errors.
func toAPIError(err error) *apierr.Error {
	var apiErr *apierr.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, layout.ErrTooManyNodes), errors.Is(err, layout.ErrTooManyIterations):
		return apierr.LayoutTooLarge(err.Error())
	case errors.Is(err, layout.ErrInvalidOptions), errors.Is(err, layout.ErrInvalidEdge):
		return apierr.LayoutInvalidParams(err.Error())
	case errors.Is(err, quadtree.ErrInvalidTheta):
		return apierr.TreeInvalidTheta()
	case errors.Is(err, store.ErrNotFound):
		return apierr.ResourceNotFound("layout run")
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.LayoutTimeout("")
	case errors.Is(err, context.Canceled):
		return apierr.SystemTimeout("Request canceled")
	}
	return apierr.LayoutFailed("")
}
