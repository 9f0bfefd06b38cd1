package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders_Static(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/api/layout/runs", nil))

	for _, kv := range staticSecurityHeaders {
		if got := rr.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
		}
	}
	if rr.Header().Get("Content-Security-Policy") != "default-src 'none'; frame-ancestors 'none'" {
		t.Error("CSP should forbid every resource type")
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  bool
	}{
		{"plain http", func(r *http.Request) {}, false},
		{"direct tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, true},
		{"proxy https", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, true},
		{"proxy chain", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https, http") }, true},
		{"proxy http", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "http") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rr, req)
			if got := rr.Header().Get("Strict-Transport-Security") == hstsValue; got != tt.want {
				t.Errorf("HSTS set = %v, want %v", got, tt.want)
			}
		})
	}
}
