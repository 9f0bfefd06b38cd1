package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const runBody = `{"id":7,"positions":[[0,0],[1.5,-2]]}`

func runHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(runBody))
	})
}

func TestETag_TagsAndRevalidates(t *testing.T) {
	h := ETag(CachePolicy{MaxAge: time.Minute, StaleWhileRevalidate: 5 * time.Minute})(runHandler(http.StatusOK))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/layout/runs/7", nil))
	tag := rr.Header().Get("ETag")
	if rr.Code != http.StatusOK || tag != bodyTag([]byte(runBody)) || rr.Body.String() != runBody {
		t.Fatalf("first response: %d %q %q", rr.Code, tag, rr.Body.String())
	}
	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=60, stale-while-revalidate=300" {
		t.Errorf("Cache-Control = %q", got)
	}

	tests := []struct {
		ifNoneMatch string
		want        int
	}{
		{tag, http.StatusNotModified},
		{"W/" + tag, http.StatusNotModified},
		{`"other", ` + tag, http.StatusNotModified},
		{"*", http.StatusNotModified},
		{`"other"`, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/layout/runs/7", nil)
		req.Header.Set("If-None-Match", tt.ifNoneMatch)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("If-None-Match %s: status %d, want %d", tt.ifNoneMatch, rr.Code, tt.want)
		}
		if tt.want == http.StatusNotModified && rr.Body.Len() != 0 {
			t.Error("304 must not carry a body")
		}
		if rr.Header().Get("ETag") != tag {
			t.Error("ETag should be sent with 304 and 200 alike")
		}
	}
}

func TestETag_Immutable(t *testing.T) {
	h := ETag(CachePolicy{MaxAge: 24 * time.Hour, Immutable: true})(runHandler(http.StatusOK))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/api/layout/runs/7", nil))
	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=86400, immutable" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestETag_PassThrough(t *testing.T) {
	h := ETag(CachePolicy{})(runHandler(http.StatusNotFound))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/layout/runs/8", nil))
	if rr.Code != http.StatusNotFound || rr.Header().Get("ETag") != "" || rr.Body.String() != runBody {
		t.Errorf("error response altered: %d etag=%q", rr.Code, rr.Header().Get("ETag"))
	}

	h = ETag(CachePolicy{})(runHandler(http.StatusOK))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/layout", nil))
	if rr.Header().Get("ETag") != "" {
		t.Error("POST responses must not be tagged")
	}
}
