package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/bhtree/internal/cache"
	"github.com/onnwee/bhtree/internal/errorreporting"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/quadtree"
	"github.com/onnwee/bhtree/internal/store"
	"github.com/onnwee/bhtree/internal/tracing"
)

var (
	// ErrTooManyNodes is returned when a request exceeds the node limit.
	ErrTooManyNodes = errors.New("layout: too many nodes")

	// ErrTooManyIterations is returned when a request exceeds the iteration limit.
	ErrTooManyIterations = errors.New("layout: too many iterations")
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r store.Run) (store.Run, error)
}

// Request asks for a layout of a graph with Nodes nodes.
type Request struct {
	Nodes   int          `json:"nodes"`
	Edges   []Edge       `json:"edges"`
	Initial [][2]float64 `json:"initial,omitempty"`
	Options Options      `json:"options"`
}

// Output is a finished layout as returned to callers and cached.
type Output struct {
	RunID     string       `json:"run_id"`
	StoredID  int64        `json:"stored_id,omitempty"`
	Hash      string       `json:"hash"`
	Positions [][2]float64 `json:"positions"`
	Result

	Cached bool `json:"-"`
}

// ServiceConfig bounds requests and fills in their unset options.
type ServiceConfig struct {
	MaxNodes      int
	MaxIterations int
	Timeout       time.Duration
	CacheTTL      time.Duration

	// Defaults applied to zero request fields
	Iterations     int
	MaxTemperature float64
	MaxStep        float64
	Theta          float64
	Workers        int
	Tree           quadtree.Config
}

// Service runs layouts with caching, persistence and instrumentation.
type Service struct {
	cfg   ServiceConfig
	cache cache.Cache
	store RunStore
}

// NewService builds a service. cache and store may be nil.
func NewService(cfg ServiceConfig, c cache.Cache, s RunStore) *Service {
	return &Service{cfg: cfg, cache: c, store: s}
}

// Config returns the service limits and defaults.
func (s *Service) Config() ServiceConfig { return s.cfg }

// Normalize fills unset options from the service defaults and checks limits.
func (s *Service) Normalize(req Request) (Request, error) {
	if req.Nodes < 0 {
		return req, fmt.Errorf("%w: negative node count %d", ErrInvalidOptions, req.Nodes)
	}
	if s.cfg.MaxNodes > 0 && req.Nodes > s.cfg.MaxNodes {
		return req, fmt.Errorf("%w: %d > %d", ErrTooManyNodes, req.Nodes, s.cfg.MaxNodes)
	}
	o := &req.Options
	if o.Iterations == 0 {
		o.Iterations = s.cfg.Iterations
	}
	if o.MaxTemperature == 0 {
		o.MaxTemperature = s.cfg.MaxTemperature
	}
	if o.MaxStep == 0 {
		o.MaxStep = s.cfg.MaxStep
	}
	if o.Theta == 0 {
		o.Theta = s.cfg.Theta
	}
	if o.Workers == 0 {
		o.Workers = s.cfg.Workers
	}
	*o = o.withDefaults(req.Nodes)
	if s.cfg.MaxIterations > 0 && o.Iterations > s.cfg.MaxIterations {
		return req, fmt.Errorf("%w: %d > %d", ErrTooManyIterations, o.Iterations, s.cfg.MaxIterations)
	}
	if len(req.Initial) != 0 && len(req.Initial) != req.Nodes {
		return req, fmt.Errorf("%w: %d initial positions for %d nodes", ErrInvalidOptions, len(req.Initial), req.Nodes)
	}
	return req, o.validate(req.Nodes)
}

// Hash returns the content hash of a normalized request. Equal hashes mean
// equal results.
func (s *Service) Hash(req Request) (string, error) {
	body, err := json.Marshal(struct {
		Request
		MergeThreshold float64 `json:"merge_threshold"`
		MaxDepth       int     `json:"max_depth"`
	}{req, s.cfg.Tree.MergeThreshold, s.cfg.Tree.MaxDepth})
	if err != nil {
		return "", err
	}
	key := cache.Key("layout", body)
	return key[len("layout:"):], nil
}

// Compute returns the layout for req, from the cache when possible.
func (s *Service) Compute(ctx context.Context, req Request) (*Output, error) {
	return s.compute(ctx, req, nil, true)
}

// Stream computes req without consulting the cache, calling onFrame after
// every iteration. The finished result is still cached and stored.
func (s *Service) Stream(ctx context.Context, req Request, onFrame func(Frame) error) (*Output, error) {
	return s.compute(ctx, req, onFrame, false)
}

func (s *Service) compute(ctx context.Context, req Request, onFrame func(Frame) error, useCache bool) (*Output, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	g, err := NewGraph(req.Nodes, req.Edges)
	if err != nil {
		return nil, err
	}
	hash, err := s.Hash(req)
	if err != nil {
		return nil, fmt.Errorf("hash request: %w", err)
	}
	key := "layout:" + hash

	if useCache && s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			var out Output
			if err := json.Unmarshal(data, &out); err == nil {
				metrics.LayoutCacheRequests.WithLabelValues("hit").Inc()
				out.Cached = true
				return &out, nil
			}
			s.cache.Delete(key)
		}
		metrics.LayoutCacheRequests.WithLabelValues("miss").Inc()
	}

	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	ctx, span := tracing.StartSpan(ctx, "layout.compute")
	defer span.End()
	span.SetAttributes(attribute.String("layout.run_id", runID), attribute.String("layout.hash", hash))

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.run(ctx, g, req, onFrame)
	metrics.LayoutRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "canceled"
		}
		metrics.LayoutRunsTotal.WithLabelValues(status).Inc()
		tracing.RecordError(span, err)
		logger.WarnContext(ctx, "Layout run failed", "error", err, "nodes", req.Nodes)
		return nil, err
	}
	metrics.LayoutRunsTotal.WithLabelValues("success").Inc()

	out := &Output{RunID: runID, Hash: hash, Positions: toPairs(res.Positions), Result: res}
	logger.InfoContext(ctx, "Layout run complete",
		"nodes", req.Nodes,
		"edges", len(req.Edges),
		"iterations", res.Iterations,
		"interactions", res.Interactions,
		"forced_merges", res.ForcedMerges,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if res.ForcedMerges > 0 {
		logger.WarnContext(ctx, "Quadtree depth cap reached during layout", "forced_merges", res.ForcedMerges)
		errorreporting.ReportForcedMerges(res.ForcedMerges, s.treeDepth(), map[string]string{"run_id": runID})
	}

	if s.store != nil {
		params, _ := json.Marshal(req.Options)
		saved, err := s.store.SaveRun(ctx, store.Run{
			RunID:        runID,
			RequestHash:  hash,
			NodeCount:    req.Nodes,
			EdgeCount:    len(req.Edges),
			Iterations:   res.Iterations,
			ForcedMerges: res.ForcedMerges,
			Params:       params,
			Positions:    out.Positions,
		})
		if err != nil {
			// the layout is still valid without a stored copy
			logger.WarnContext(ctx, "Failed to persist layout run", "error", err)
		} else {
			out.StoredID = saved.ID
		}
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			s.cache.Set(key, data, s.cfg.CacheTTL)
		}
	}
	return out, nil
}

func (s *Service) run(ctx context.Context, g *Graph, req Request, onFrame func(Frame) error) (Result, error) {
	opts := req.Options
	opts.Tree = s.cfg.Tree
	if len(req.Initial) > 0 {
		opts.Initial = make([]r2.Vec, len(req.Initial))
		for i, p := range req.Initial {
			opts.Initial[i] = r2.Vec{X: p[0], Y: p[1]}
		}
	}

	l, err := New(ctx, g, opts)
	if err != nil {
		return Result{}, err
	}
	return l.Run(ctx, onFrame)
}

func (s *Service) treeDepth() int {
	if s.cfg.Tree.MaxDepth > 0 {
		return s.cfg.Tree.MaxDepth
	}
	return quadtree.DefaultMaxDepth
}

func toPairs(vs []r2.Vec) [][2]float64 {
	out := make([][2]float64, len(vs))
	for i, v := range vs {
		out[i] = [2]float64{v.X, v.Y}
	}
	return out
}
