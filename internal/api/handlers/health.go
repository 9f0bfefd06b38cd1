package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/bhtree/internal/circuitbreaker"
)

// Health returns a simple JSON payload to indicate the API is alive.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Breaker is a named circuit breaker guarding a dependency.
type Breaker interface {
	Name() string
	GetState() circuitbreaker.State
}

// Ready reports whether the server's dependencies are usable. An open
// breaker makes the server degraded but still ready, since layouts do not
// need the store.
func Ready(deps ...Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		checks := make(map[string]string, len(deps))
		for _, d := range deps {
			state := d.GetState()
			checks[d.Name()] = state.String()
			if state != circuitbreaker.StateClosed {
				status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}
