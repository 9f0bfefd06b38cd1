package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/bhtree/internal/apierr"
	"github.com/onnwee/bhtree/internal/metrics"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitStaleAfter      = 3 * time.Minute
)

// CostFunc prices a request in tokens. Layout runs cost far more CPU than a
// run listing, so they can be charged more.
type CostFunc func(r *http.Request) int

// RateLimiter applies a global token bucket and one bucket per client IP.
type RateLimiter struct {
	global  *rate.Limiter
	ipRate  rate.Limit
	ipBurst int
	now     func() time.Time

	mu    sync.Mutex
	perIP map[string]*ipLimiter

	done     chan struct{}
	stopOnce sync.Once
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing globalRate requests per second
// overall and ipRate per client, with the given burst sizes. It starts a
// goroutine that forgets idle clients; call Stop to end it.
func NewRateLimiter(globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		global:  rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipRate:  rate.Limit(ipRate),
		ipBurst: ipBurst,
		now:     time.Now,
		perIP:   make(map[string]*ipLimiter),
		done:    make(chan struct{}),
	}
	go rl.cleanupStaleEntries()
	return rl
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perIP[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIP[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (rl *RateLimiter) cleanupStaleEntries() {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.prune(now.Add(-rateLimitStaleAfter))
		}
	}
}

// prune removes limiters last used before cutoff and returns how many remain.
func (rl *RateLimiter) prune(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.perIP {
		if l.lastSeen.Before(cutoff) {
			delete(rl.perIP, ip)
		}
	}
	return len(rl.perIP)
}

// Clients returns how many client IPs currently hold a bucket.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.perIP)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// take reserves n tokens from lim. It reports how long the caller would have
// to wait when the tokens are not available now. A cost above the burst is
// capped to the burst so expensive requests stay possible.
func take(lim *rate.Limiter, n int, now time.Time) (time.Duration, bool) {
	if b := lim.Burst(); b > 0 && n > b {
		n = b
	}
	res := lim.ReserveN(now, n)
	if !res.OK() {
		return 0, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// Limit charges every request one token.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return rl.LimitWithCost(nil)(next)
}

// LimitWithCost charges each request cost(r) tokens, or one when cost is nil.
// Rejections carry a Retry-After header.
func (rl *RateLimiter) LimitWithCost(cost CostFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := 1
			if cost != nil {
				if c := cost(r); c > 1 {
					n = c
				}
			}
			now := rl.now()

			if wait, ok := take(rl.global, n, now); !ok {
				metrics.RateLimitRejections.WithLabelValues("global").Inc()
				apierr.WriteErrorWithContext(w, r, apierr.RateLimitGlobal().WithRetryAfter(wait))
				return
			}
			if wait, ok := take(rl.getLimiter(getClientIP(r)), n, now); !ok {
				metrics.RateLimitRejections.WithLabelValues("ip").Inc()
				apierr.WriteErrorWithContext(w, r, apierr.RateLimitIP().WithRetryAfter(wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
