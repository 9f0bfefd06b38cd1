// Package layout places graph nodes with force-directed placement. Every
// node repels every other through Barnes-Hut interaction queries on a
// quadtree rebuilt each iteration, and edges pull their endpoints together.
package layout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/bhtree/internal/forces"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/particles"
	"github.com/onnwee/bhtree/internal/quadtree"
	"github.com/onnwee/bhtree/internal/tracing"
)

var (
	// ErrInvalidOptions wraps every option validation failure.
	ErrInvalidOptions = errors.New("layout: invalid options")
)

// Repulsion is the force between every pair of nodes: Weight·d^Alpha, scaled
// by how many nodes a partner stands in for.
type Repulsion struct {
	Weight float64 `json:"weight"`
	Alpha  float64 `json:"alpha"`
}

// Attraction is the force along each edge: Weight·d^Alpha / g^Beta where g is
// the shortest-path distance between the endpoints.
type Attraction struct {
	Weight float64 `json:"weight"`
	Alpha  float64 `json:"alpha"`
	Beta   float64 `json:"beta"`
}

// Options configures a layout. Zero fields take defaults.
type Options struct {
	// Bounds confines every node. Zero means the square [0, √n]².
	Bounds quadtree.Boundary `json:"bounds"`

	Iterations     int     `json:"iterations"`      // default 100
	MaxTemperature float64 `json:"max_temperature"` // default 1
	MaxStep        float64 `json:"max_step"`        // 0 leaves displacement uncapped
	Theta          float64 `json:"theta"`           // default 0.5
	MinDistance    float64 `json:"min_distance"`    // default 0.001

	Repulsion  Repulsion  `json:"repulsion"`  // default {-1, -1}
	Attraction Attraction `json:"attraction"` // default {1, 2, 1}

	Tree    quadtree.Config `json:"-"`
	Workers int             `json:"-"` // default GOMAXPROCS

	// Seed drives the random initial placement when Initial is empty.
	Seed    uint64   `json:"seed"`
	Initial []r2.Vec `json:"-"`
}

// DefaultIterations matches the classic placement run length.
const DefaultIterations = 100

func (o Options) withDefaults(n int) Options {
	if o.Bounds == (quadtree.Boundary{}) {
		side := math.Max(1, math.Sqrt(float64(n)))
		o.Bounds = quadtree.Boundary{W: side, H: side}
	}
	if o.Iterations == 0 {
		o.Iterations = DefaultIterations
	}
	if o.MaxTemperature == 0 {
		o.MaxTemperature = 1
	}
	if o.Theta == 0 {
		o.Theta = 0.5
	}
	if o.MinDistance == 0 {
		o.MinDistance = forces.DefaultMinDistance
	}
	if o.Repulsion == (Repulsion{}) {
		o.Repulsion = Repulsion{Weight: -1, Alpha: -1}
	}
	if o.Attraction == (Attraction{}) {
		o.Attraction = Attraction{Weight: 1, Alpha: 2, Beta: 1}
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

func (o Options) validate(n int) error {
	switch {
	case !o.Bounds.Valid():
		return fmt.Errorf("%w: bounds %v", ErrInvalidOptions, o.Bounds)
	case o.Iterations < 0:
		return fmt.Errorf("%w: iterations %d", ErrInvalidOptions, o.Iterations)
	case o.MaxTemperature < 0 || math.IsNaN(o.MaxTemperature):
		return fmt.Errorf("%w: max temperature %v", ErrInvalidOptions, o.MaxTemperature)
	case o.MaxStep < 0 || math.IsNaN(o.MaxStep):
		return fmt.Errorf("%w: max step %v", ErrInvalidOptions, o.MaxStep)
	case o.Theta < 0 || math.IsNaN(o.Theta):
		return fmt.Errorf("%w: theta %v", ErrInvalidOptions, o.Theta)
	case o.MinDistance < 0:
		return fmt.Errorf("%w: min distance %v", ErrInvalidOptions, o.MinDistance)
	case len(o.Initial) != 0 && len(o.Initial) != n:
		return fmt.Errorf("%w: %d initial positions for %d nodes", ErrInvalidOptions, len(o.Initial), n)
	}
	return nil
}

// StepStats describes one iteration.
type StepStats struct {
	Iteration       int           `json:"iteration"`
	Temperature     float64       `json:"temperature"`
	Interactions    int64         `json:"interactions"`
	ForcedMerges    int           `json:"forced_merges"`
	MaxDisplacement float64       `json:"max_displacement"`
	Energy          float64       `json:"energy"` // sum of squared net force magnitudes
	Duration        time.Duration `json:"duration_ns"`
}

// Frame is handed to Run's callback after each iteration. Positions is a
// copy the callback may keep.
type Frame struct {
	Stats     StepStats
	Positions []r2.Vec
}

// XY returns the frame positions as [x, y] pairs, the wire form.
func (f Frame) XY() [][2]float64 { return toPairs(f.Positions) }

// Result is the outcome of a completed Run.
type Result struct {
	Positions    []r2.Vec          `json:"-"`
	Bounds       quadtree.Boundary `json:"bounds"`
	Iterations   int               `json:"iterations"`
	Interactions int64             `json:"interactions"`
	ForcedMerges int               `json:"forced_merges"`
	Energy       float64           `json:"energy"`
	Duration     time.Duration     `json:"duration_ns"`
}

// Layout holds node positions between iterations. It is not safe for
// concurrent use; Step parallelises internally.
type Layout struct {
	graph    *Graph
	opts     Options
	pos      []quadtree.Particle
	edgeDist []float64
	repel    forces.Law
	iter     int
	forced   int
}

// New prepares a layout of g, placing nodes at opts.Initial or uniformly at
// random inside the bounds.
func New(ctx context.Context, g *Graph, opts Options) (*Layout, error) {
	n := g.Len()
	opts = opts.withDefaults(n)
	if err := opts.validate(n); err != nil {
		return nil, err
	}

	var pos []quadtree.Particle
	if len(opts.Initial) > 0 {
		pos = make([]quadtree.Particle, n)
		for i, v := range opts.Initial {
			pos[i] = clampInto(quadtree.NewParticle(v.X, v.Y), opts.Bounds)
		}
	} else {
		pos = particles.Uniform(particles.NewRand(opts.Seed), n, opts.Bounds, 1)
	}

	edgeDist, err := g.EdgeDistances(ctx, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("edge distances: %w", err)
	}

	return &Layout{
		graph:    g,
		opts:     opts,
		pos:      pos,
		edgeDist: edgeDist,
		repel:    forces.Repulsion(opts.Repulsion.Weight, opts.Repulsion.Alpha),
	}, nil
}

// Options returns the effective options.
func (l *Layout) Options() Options { return l.opts }

// Iteration returns the number of steps taken so far.
func (l *Layout) Iteration() int { return l.iter }

// ForcedMerges returns the depth-cap merges summed over every step so far.
func (l *Layout) ForcedMerges() int { return l.forced }

// Positions returns a copy of the current node positions.
func (l *Layout) Positions() []r2.Vec {
	out := make([]r2.Vec, len(l.pos))
	for i, p := range l.pos {
		out[i] = r2.Vec{X: p.X, Y: p.Y}
	}
	return out
}

// Temperature returns the cooling schedule value for iteration t.
func (l *Layout) Temperature(t int) float64 {
	if l.opts.Iterations == 0 {
		return 0
	}
	return l.opts.MaxTemperature * (1 - float64(t)/float64(l.opts.Iterations))
}

// Step runs one iteration at the given temperature: rebuild the tree,
// aggregate, query every node in parallel, add edge attraction, then move
// each node by force times temperature and clamp it into the bounds.
func (l *Layout) Step(ctx context.Context, temperature float64) (StepStats, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "layout.step")
	defer span.End()
	span.SetAttributes(attribute.Int("layout.iteration", l.iter), attribute.Float64("layout.temperature", temperature))

	if err := ctx.Err(); err != nil {
		tracing.RecordError(span, err)
		return StepStats{}, err
	}

	stats := StepStats{Iteration: l.iter, Temperature: temperature}

	cfg := l.opts.Tree
	hook := cfg.OnForcedMerge
	cfg.OnForcedMerge = func(fm quadtree.ForcedMerge) {
		stats.ForcedMerges++
		if hook != nil {
			hook(fm)
		}
	}
	tree := quadtree.NewWithConfig(l.opts.Bounds, cfg)
	tree.InsertAll(l.pos)

	aggStart := time.Now()
	tree.Aggregate()
	metrics.QuadtreeAggregateDuration.Observe(time.Since(aggStart).Seconds())

	net, interactions, err := l.repulsion(ctx, tree)
	if err != nil {
		tracing.RecordError(span, err)
		return StepStats{}, err
	}
	stats.Interactions = interactions
	l.attract(net)

	for i, f := range net {
		stats.Energy += r2.Dot(f, f)
		disp := r2.Scale(temperature, f)
		if l.opts.MaxStep > 0 {
			if d := r2.Norm(disp); d > l.opts.MaxStep {
				disp = r2.Scale(l.opts.MaxStep/d, disp)
			}
		}
		old := l.pos[i]
		moved := clampInto(quadtree.Particle{X: old.X + disp.X, Y: old.Y + disp.Y, Weight: old.Weight}, l.opts.Bounds)
		stats.MaxDisplacement = math.Max(stats.MaxDisplacement, old.Dist(moved))
		l.pos[i] = moved
	}

	l.iter++
	l.forced += stats.ForcedMerges
	if stats.ForcedMerges > 0 {
		metrics.QuadtreeForcedMerges.Add(float64(stats.ForcedMerges))
	}
	stats.Duration = time.Since(start)
	metrics.LayoutIterationDuration.Observe(stats.Duration.Seconds())
	span.SetAttributes(attribute.Int64("layout.interactions", stats.Interactions))
	return stats, nil
}

// repulsion sums the Barnes-Hut repulsion on every node, fanning the queries
// out over Workers goroutines in contiguous chunks.
func (l *Layout) repulsion(ctx context.Context, tree *quadtree.Tree) ([]r2.Vec, int64, error) {
	n := len(l.pos)
	net := make([]r2.Vec, n)
	if n == 0 {
		return net, 0, nil
	}

	chunk := max(1, (n+l.opts.Workers*4-1)/(l.opts.Workers*4))
	var total atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(l.opts.Workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(n, lo+chunk)
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var count int64
			for i := lo; i < hi; i++ {
				pairs, err := tree.InteractionsFor(l.pos[i], l.opts.Theta)
				if err != nil {
					return err
				}
				metrics.QuadtreeInteractionsPerQuery.Observe(float64(len(pairs)))
				count += int64(len(pairs))
				net[i] = forces.Sum(pairs, l.repel, l.opts.MinDistance)
			}
			total.Add(count)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return net, total.Load(), nil
}

// attract adds edge attraction to both endpoints of every edge.
func (l *Layout) attract(net []r2.Vec) {
	a := l.opts.Attraction
	quotient := forces.Quotient(a.Weight, a.Alpha, a.Beta)
	for i, e := range l.graph.edges {
		gd := l.edgeDist[i]
		law := func(_, _ quadtree.Particle, d float64) float64 { return quotient(d, gd) }
		f := forces.Between(l.pos[e.From], l.pos[e.To], law, l.opts.MinDistance)
		net[e.From] = r2.Add(net[e.From], f)
		net[e.To] = r2.Sub(net[e.To], f)
	}
}

// Run performs Iterations steps under linear cooling T_t = MaxT·(1 − t/Iterations),
// calling onFrame, if non-nil, after each one. An error from onFrame or ctx
// stops the run and is returned.
func (l *Layout) Run(ctx context.Context, onFrame func(Frame) error) (Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "layout.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("layout.nodes", l.graph.Len()),
		attribute.Int("layout.edges", len(l.graph.edges)),
		attribute.Int("layout.iterations", l.opts.Iterations),
	)

	res := Result{Bounds: l.opts.Bounds}
	for t := 0; t < l.opts.Iterations; t++ {
		stats, err := l.Step(ctx, l.Temperature(t))
		if err != nil {
			tracing.RecordError(span, err)
			return Result{}, err
		}
		res.Iterations++
		res.Interactions += stats.Interactions
		res.ForcedMerges += stats.ForcedMerges
		res.Energy = stats.Energy

		if onFrame != nil {
			if err := onFrame(Frame{Stats: stats, Positions: l.Positions()}); err != nil {
				tracing.RecordError(span, err)
				return Result{}, err
			}
		}
	}

	res.Positions = l.Positions()
	res.Duration = time.Since(start)
	return res, nil
}

func clampInto(p quadtree.Particle, b quadtree.Boundary) quadtree.Particle {
	p.X = math.Min(b.X+b.W, math.Max(b.X, p.X))
	p.Y = math.Min(b.Y+b.H, math.Max(b.Y, p.Y))
	return p
}
