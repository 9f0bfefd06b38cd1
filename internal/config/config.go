package config

import (
	"os"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	// Default quadtree settings for requests that omit them
	BoundaryW      float64
	BoundaryH      float64
	MergeThreshold float64
	MaxDepth       int
	SelfEpsilon    float64
	Theta          float64
	// Layout computation settings
	LayoutMaxNodes       int           // maximum particles/nodes accepted per request
	LayoutIterations     int           // default number of cooling iterations
	LayoutMaxIterations  int           // upper bound on requested iterations
	LayoutMaxTemperature float64       // starting temperature
	LayoutMaxStep        float64       // cap on a single node displacement (0 = uncapped)
	LayoutWorkers        int           // parallel interaction queries per iteration
	LayoutTimeout        time.Duration // deadline for a single layout run
	// Result cache
	CacheMaxMB      int64
	CacheMaxEntries int64
	CacheTTL        time.Duration
	// Persistence
	DatabaseURL        string
	DBBreakerFailures  int
	DBBreakerResetTime time.Duration
	RunRetention       time.Duration // stored runs older than this are pruned (0 = keep forever)
	RunPruneSchedule   string
	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
	MetricsInterval   time.Duration
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		HTTPAddr:        strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		ShutdownTimeout: GetEnvAsDuration("SHUTDOWN_TIMEOUT_MS", 15*time.Second),
		MaxBodyBytes:    int64(GetEnvAsInt("MAX_BODY_BYTES", 8<<20)),
		// Quadtree defaults; zero values fall back to the tree's own defaults
		BoundaryW:      GetEnvAsFloat("BOUNDARY_W", 0),
		BoundaryH:      GetEnvAsFloat("BOUNDARY_H", 0),
		MergeThreshold: GetEnvAsFloat("MERGE_THRESHOLD", 0.001),
		MaxDepth:       GetEnvAsInt("MAX_DEPTH", 48),
		SelfEpsilon:    GetEnvAsFloat("SELF_EPSILON", 0.001),
		Theta:          GetEnvAsFloat("THETA", 0.5),
		// Layout computation: defaults follow the classic force-directed placement run
		LayoutMaxNodes:       GetEnvAsInt("LAYOUT_MAX_NODES", 5000),
		LayoutIterations:     GetEnvAsInt("LAYOUT_ITERATIONS", 100),
		LayoutMaxIterations:  GetEnvAsInt("LAYOUT_MAX_ITERATIONS", 2000),
		LayoutMaxTemperature: GetEnvAsFloat("LAYOUT_MAX_TEMPERATURE", 1.0),
		LayoutMaxStep:        GetEnvAsFloat("LAYOUT_MAX_STEP", 0),
		LayoutWorkers:        GetEnvAsInt("LAYOUT_WORKERS", 0),
		LayoutTimeout:        GetEnvAsDuration("LAYOUT_TIMEOUT_MS", 60*time.Second),
		// Cache
		CacheMaxMB:      int64(GetEnvAsInt("CACHE_MAX_MB", 64)),
		CacheMaxEntries: int64(GetEnvAsInt("CACHE_MAX_ENTRIES", 256)),
		CacheTTL:        time.Duration(GetEnvAsInt("CACHE_TTL_SEC", 600)) * time.Second,
		// Persistence
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBBreakerFailures:  GetEnvAsInt("DB_BREAKER_FAILURES", 5),
		DBBreakerResetTime: GetEnvAsDuration("DB_BREAKER_RESET_MS", 30*time.Second),
		RunRetention:       time.Duration(GetEnvAsInt("RUN_RETENTION_HOURS", 0)) * time.Hour,
		RunPruneSchedule:   strings.TrimSpace(os.Getenv("RUN_PRUNE_SCHEDULE")),
		// Security settings with sensible defaults
		RateLimitGlobal:      GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		CORSAllowedOrigins: GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
			[]string{"http://localhost:5173", "http://localhost:3000"}, ","),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		MetricsInterval:   time.Duration(GetEnvAsInt("METRICS_INTERVAL_SEC", 30)) * time.Second,
	}
	if cached.HTTPAddr == "" {
		cached.HTTPAddr = ":8080"
	}
	if cached.RunPruneSchedule == "" {
		cached.RunPruneSchedule = "@hourly"
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// GetEnvBool reads a boolean environment variable with a default.
// Use this when you need to check a flag not present in the cached config.
func (c *Config) GetEnvBool(key string, def bool) bool {
	return GetEnvAsBool(key, def)
}
