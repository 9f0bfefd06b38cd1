package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/bhtree/internal/api/handlers"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/middleware"
)

// Deps are the services the HTTP API is built on. Runs and RateLimiter may
// be nil: without a store the run endpoints answer 503, without a limiter
// nothing is throttled.
type Deps struct {
	Tree        handlers.TreeConfig
	Layout      *layout.Service
	Runs        handlers.RunReader
	Breakers    []handlers.Breaker
	Hub         *handlers.Hub
	RateLimiter *middleware.RateLimiter

	AllowedOrigins  []string
	MaxBodyBytes    int64
	MaxWSMessageLen int64
}

// computeCost is the token price of a request that runs a layout or builds
// a tree. Reads and health checks cost one.
const computeCost = 5

func requestCost(r *http.Request) int {
	if r.Method == http.MethodPost || r.URL.Path == "/ws/layout" {
		return computeCost
	}
	return 1
}

var (
	listCache = middleware.ETag(middleware.CachePolicy{MaxAge: 10 * time.Second, StaleWhileRevalidate: time.Minute})
	runCache  = middleware.ETag(middleware.CachePolicy{MaxAge: 24 * time.Hour, Immutable: true})
)

// NewRouter wires every route and wraps the router in the middleware chain.
func NewRouter(d Deps) http.Handler {
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = middleware.DefaultOrigins
	}

	r := mux.NewRouter()
	r.Use(instrument)

	// Health and metrics
	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.HandleFunc("/ready", handlers.Ready(d.Breakers...)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Quadtree
	api.HandleFunc("/tree", handlers.BuildTree(d.Tree)).Methods("POST")
	api.HandleFunc("/interactions", handlers.Interactions(d.Tree)).Methods("POST")

	// Layout
	api.HandleFunc("/layout", handlers.ComputeLayout(d.Layout)).Methods("POST")
	api.Handle("/layout/runs", listCache(handlers.ListRuns(d.Runs))).Methods("GET")
	api.Handle("/layout/runs/{id:[0-9]+}", runCache(handlers.GetRun(d.Runs))).Methods("GET")

	// Streaming
	if d.Hub != nil {
		ws := handlers.NewWebSocketHandler(d.Hub, d.Layout, origins, d.MaxWSMessageLen)
		r.HandleFunc("/ws/layout", ws.HandleWebSocket).Methods("GET")
	}

	var h http.Handler = r
	h = middleware.ValidateRequestBody(d.MaxBodyBytes)(h)
	h = middleware.Compress(h)
	h = middleware.SecurityHeaders(h)
	if d.RateLimiter != nil {
		h = d.RateLimiter.LimitWithCost(requestCost)(h)
	}
	h = middleware.CORS(middleware.CORSOptions{Origins: origins})(h)
	h = middleware.RecoverWithSentry(h)
	h = middleware.RequestID(h)
	return h
}
