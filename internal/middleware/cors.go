package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// OriginPolicy decides which browser origins may call the API. Entries are
// exact origins ("https://viz.example.com"), "*", or a "*.example.com"
// pattern matching any subdomain under any scheme.
type OriginPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

// NewOriginPolicy compiles the allowed origin list.
func NewOriginPolicy(allowed []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{}, len(allowed))}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.TrimSuffix(a, "/"))
		switch {
		case a == "":
		case a == "*":
			p.any = true
		case strings.HasPrefix(a, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(a[1:]))
		default:
			p.exact[strings.ToLower(a)] = struct{}{}
		}
	}
	return p
}

// Allows reports whether origin is permitted. An empty origin never is.
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	if len(p.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	for _, s := range p.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// CORSOptions configures the CORS middleware.
type CORSOptions struct {
	Origins     []string
	Credentials bool
	MaxAge      time.Duration
}

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{"Accept", "Content-Type", RequestIDHeader}, ", ")
	corsExposed = strings.Join([]string{RequestIDHeader, "X-Cache", "ETag", "Retry-After"}, ", ")
)

// DefaultOrigins are the local frontend dev servers, used when nothing is
// configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// CORS answers preflight requests itself and decorates the rest. Responses
// to origins outside the policy carry no Access-Control headers, leaving the
// browser to block them.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origins := opts.Origins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	policy := NewOriginPolicy(origins)
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	maxAgeSecs := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			allowed := policy.Allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				if opts.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", maxAgeSecs)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed {
				h.Set("Access-Control-Expose-Headers", corsExposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}
