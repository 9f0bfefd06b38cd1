package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/onnwee/bhtree/internal/apierr"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured (8MB).
const DefaultMaxBodyBytes = 8 << 20

// ValidateRequestBody returns a middleware that limits request body size.
// A limit of zero or less uses DefaultMaxBodyBytes.
func ValidateRequestBody(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only limit POST, PUT, PATCH requests with a body
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DecodeJSON decodes a JSON request body into v. Unknown fields and trailing
// data are rejected. The returned error is ready to write to the client.
func DecodeJSON(r *http.Request, v interface{}) *apierr.Error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		return apierr.ValidationInvalidFormat("Content-Type must be application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return apierr.ValidationBodyTooLarge(maxErr.Limit)
		case errors.Is(err, io.EOF):
			return apierr.ValidationInvalidFormat("Request body is empty")
		case errors.As(err, &typeErr):
			return apierr.ValidationInvalidValue(typeErr.Field, "")
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return apierr.ValidationInvalidFormat(strings.TrimPrefix(err.Error(), "json: "))
		}
		return apierr.ValidationInvalidJSON()
	}
	if dec.More() {
		return apierr.ValidationInvalidFormat("Request body must contain a single JSON object")
	}
	return nil
}
