package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/bhtree/internal/api"
	"github.com/onnwee/bhtree/internal/api/handlers"
	"github.com/onnwee/bhtree/internal/cache"
	"github.com/onnwee/bhtree/internal/config"
	"github.com/onnwee/bhtree/internal/errorreporting"
	"github.com/onnwee/bhtree/internal/layout"
	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
	"github.com/onnwee/bhtree/internal/middleware"
	"github.com/onnwee/bhtree/internal/quadtree"
	"github.com/onnwee/bhtree/internal/scheduler"
	"github.com/onnwee/bhtree/internal/server"
	"github.com/onnwee/bhtree/internal/store"
	"github.com/onnwee/bhtree/internal/tracing"
)

func main() {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Refusing to start", "error", err)
		os.Exit(1)
	}
	logger.Info("Initializing server", "version", cfg.SentryRelease, "log_level", cfg.LogLevel, "addr", cfg.HTTPAddr)

	// Initialize error reporting
	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		}()
	}

	// Initialize tracing
	shutdownTracing, err := tracing.Init("bhtree-server", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
		Version:    cfg.SentryRelease,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint, "sample_rate", cfg.OTELSampleRate)
		defer func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Result cache
	var (
		resultCache cache.Cache
		cacheStats  metrics.CacheStatser
	)
	if cfg.CacheMaxMB > 0 {
		lru, err := cache.NewLRU(cfg.CacheMaxMB, cfg.CacheMaxEntries, cfg.CacheTTL)
		if err != nil {
			logger.Error("Failed to create result cache", "error", err)
			os.Exit(1)
		}
		defer lru.Close()
		resultCache, cacheStats = lru, lru
	}

	// Optional run store
	var (
		runStore   layout.RunStore
		runReader  handlers.RunReader
		runCounter metrics.RunCounter
		breakers   []handlers.Breaker
		workers    []server.Worker
	)
	if cfg.DatabaseURL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		st, err := store.Open(openCtx, cfg.DatabaseURL, store.Config{
			BreakerFailures:  cfg.DBBreakerFailures,
			BreakerResetTime: cfg.DBBreakerResetTime,
		})
		if err == nil {
			err = st.Migrate(openCtx)
		}
		cancel()
		if err != nil {
			logger.Error("Failed to open run store", "error", err)
			os.Exit(1)
		}
		defer st.Close()
		runStore, runReader, runCounter = st, st, st
		breakers = append(breakers, st.Breaker())
		logger.Info("Run store ready", "database", config.MaskURL(cfg.DatabaseURL))

		if cfg.RunRetention > 0 {
			retention := cfg.RunRetention
			pruner, err := scheduler.NewService("prune_runs", cfg.RunPruneSchedule, func(ctx context.Context) error {
				n, err := st.PruneRuns(ctx, time.Now().Add(-retention))
				if err == nil && n > 0 {
					logger.InfoContext(ctx, "Pruned old layout runs", "deleted", n, "retention", retention.String())
				}
				return err
			})
			if err != nil {
				logger.Error("Invalid RUN_PRUNE_SCHEDULE", "error", err)
				os.Exit(1)
			}
			workers = append(workers, pruner)
		}
	} else {
		logger.Info("DATABASE_URL not set; layout runs will not be persisted")
	}

	treeCfg := quadtree.Config{
		MergeThreshold: cfg.MergeThreshold,
		MaxDepth:       cfg.MaxDepth,
		SelfEpsilon:    cfg.SelfEpsilon,
	}
	svc := layout.NewService(layout.ServiceConfig{
		MaxNodes:       cfg.LayoutMaxNodes,
		MaxIterations:  cfg.LayoutMaxIterations,
		Timeout:        cfg.LayoutTimeout,
		CacheTTL:       cfg.CacheTTL,
		Iterations:     cfg.LayoutIterations,
		MaxTemperature: cfg.LayoutMaxTemperature,
		MaxStep:        cfg.LayoutMaxStep,
		Theta:          cfg.Theta,
		Workers:        cfg.LayoutWorkers,
		Tree:           treeCfg,
	}, resultCache, runStore)

	var rl *middleware.RateLimiter
	if cfg.EnableRateLimit {
		rl = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
	}

	hub := handlers.NewHub()
	router := api.NewRouter(api.Deps{
		Tree: handlers.TreeConfig{
			MaxParticles: cfg.LayoutMaxNodes,
			Theta:        cfg.Theta,
			Tree:         treeCfg,
		},
		Layout:          svc,
		Runs:            runReader,
		Breakers:        breakers,
		Hub:             hub,
		RateLimiter:     rl,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		MaxWSMessageLen: cfg.MaxBodyBytes,
	})

	var samplers []metrics.Sampler
	if cacheStats != nil {
		samplers = append(samplers, metrics.CacheSampler(cacheStats))
	}
	if runCounter != nil {
		samplers = append(samplers, metrics.RunCountSampler(runCounter))
	}
	if rl != nil {
		samplers = append(samplers, metrics.GaugeSampler("ratelimit", metrics.RateLimitClients, func() float64 {
			return float64(rl.Clients())
		}))
	}
	if len(samplers) > 0 {
		workers = append(workers, metrics.NewCollector(cfg.MetricsInterval, samplers...))
	}

	srv := server.New(server.Options{
		Addr:            cfg.HTTPAddr,
		Handler:         router,
		Hub:             hub,
		Workers:         workers,
		RateLimiter:     rl,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", "error", err)
		errorreporting.CaptureError(err)
		os.Exit(1)
	}
	logger.Info("Server exited cleanly")
}
