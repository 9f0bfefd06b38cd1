package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/bhtree/internal/logger"
)

// Sampler refreshes one group of gauges. A failing sampler is counted in
// MetricsCollectionErrors under Name and does not hold up the others.
type Sampler struct {
	Name   string
	Sample func(ctx context.Context) error
}

// CacheStatser reports result cache statistics.
type CacheStatser interface {
	Size() int64
	Items() int64
	Evictions() uint64
}

// CacheSampler copies cache statistics into the cache gauges.
func CacheSampler(c CacheStatser) Sampler {
	return Sampler{Name: "cache", Sample: func(context.Context) error {
		CacheSize.Set(float64(c.Size()))
		CacheItems.Set(float64(c.Items()))
		CacheEvictions.Set(float64(c.Evictions()))
		return nil
	}}
}

// RunCounter reports how many layout runs are persisted.
type RunCounter interface {
	CountRuns(ctx context.Context) (int64, error)
}

// RunCountSampler sets StoredRunsTotal, or -1 when the count is unavailable
// so dashboards can tell stale data from an empty store.
func RunCountSampler(r RunCounter) Sampler {
	return Sampler{Name: "store", Sample: func(ctx context.Context) error {
		n, err := r.CountRuns(ctx)
		if err != nil {
			StoredRunsTotal.Set(-1)
			return err
		}
		StoredRunsTotal.Set(float64(n))
		return nil
	}}
}

// GaugeSampler sets g from read on each pass.
func GaugeSampler(name string, g prometheus.Gauge, read func() float64) Sampler {
	return Sampler{Name: name, Sample: func(context.Context) error {
		g.Set(read())
		return nil
	}}
}

// Collector periodically refreshes gauges that are cheaper to sample than to
// maintain on every request.
type Collector struct {
	samplers []Sampler
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewCollector(interval time.Duration, samplers ...Sampler) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		samplers: samplers,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start samples immediately and then every interval until ctx is done or
// Stop is called.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// collect runs every sampler concurrently. Each pass must finish within one
// interval so a slow store cannot stack up passes.
func (c *Collector) collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	var g errgroup.Group
	for _, s := range c.samplers {
		g.Go(func() error {
			if err := s.Sample(ctx); err != nil {
				logger.WarnContext(ctx, "Metrics sampler failed", "sampler", s.Name, "error", err)
				MetricsCollectionErrors.WithLabelValues(s.Name).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
}
