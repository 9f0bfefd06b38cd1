// Package circuitbreaker stops calls to a failing dependency for a cooling
// period, then lets a limited number of probes through to test recovery.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
)

// ErrCircuitOpen is returned instead of calling fn while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position. Its integer value is what the
// circuit_breaker_state gauge reports.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration. Zero fields take defaults.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the breaker (5)
	SuccessThreshold int           // half-open successes that close it again (2)
	Timeout          time.Duration // how long it stays open before probing (60s)
	MaxProbes        int           // concurrent calls allowed while half-open (1)

	// IsFailure decides which errors count against the breaker. Errors it
	// rejects (a missing row, say) are returned but treated as successes.
	// Nil counts every error.
	IsFailure func(error) bool
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(error) bool { return true }
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(StateClosed))
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open or already has MaxProbes half-open
// calls in flight, in which case it returns ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	probe, ok := cb.acquire()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.release(probe, err != nil && cb.cfg.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) acquire() (probe, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			return false, false
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.MaxProbes {
			return false, false
		}
		cb.probes++
		return true, true
	}
	return false, true
}

func (cb *CircuitBreaker) release(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probes--
	}
	switch {
	case failed && cb.state == StateHalfOpen:
		cb.setState(StateOpen)
	case failed && cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	case !failed && cb.state == StateHalfOpen && probe:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
	case !failed && cb.state == StateClosed:
		cb.failures = 0
	}
}

// setState moves to s and resets the counters. Callers hold mu.
func (cb *CircuitBreaker) setState(s State) {
	from := cb.state
	cb.state = s
	cb.failures, cb.successes = 0, 0
	if s == StateOpen {
		cb.openedAt = cb.now()
		metrics.CircuitBreakerTrips.WithLabelValues(cb.cfg.Name).Inc()
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.cfg.Name).Set(float64(s))
	logger.WithComponent("circuitbreaker").Info("Circuit breaker state changed",
		"name", cb.cfg.Name, "from", from.String(), "to", s.String())
}

// GetState returns the current state. An open breaker whose timeout has
// passed still reports open until the next call probes it.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the label the breaker reports metrics under.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }
