package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CachePolicy is the Cache-Control a tagged response advertises. Stored
// layout runs never change once written, so they can be Immutable; listings
// grow and get a short MaxAge.
type CachePolicy struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
	Immutable            bool
}

func (p CachePolicy) header() string {
	var b strings.Builder
	b.WriteString("public, max-age=")
	b.WriteString(strconv.Itoa(int(p.MaxAge / time.Second)))
	if p.StaleWhileRevalidate > 0 {
		b.WriteString(", stale-while-revalidate=")
		b.WriteString(strconv.Itoa(int(p.StaleWhileRevalidate / time.Second)))
	}
	if p.Immutable {
		b.WriteString(", immutable")
	}
	return b.String()
}

// bufferedWriter holds the response until the handler returns so the body
// can be hashed before anything is sent.
type bufferedWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(status int) { w.status = status }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

// ETag tags successful GET and HEAD responses with a strong validator over
// the body and answers 304 when If-None-Match already holds it. Other
// methods and non-200 responses pass through untouched.
func ETag(policy CachePolicy) func(http.Handler) http.Handler {
	cacheControl := policy.header()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r)

			if bw.status != http.StatusOK {
				w.WriteHeader(bw.status)
				w.Write(bw.buf.Bytes())
				return
			}

			tag := bodyTag(bw.buf.Bytes())
			w.Header().Set("ETag", tag)
			w.Header().Set("Cache-Control", cacheControl)
			if etagMatches(r.Header.Get("If-None-Match"), tag) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(bw.buf.Bytes())
		})
	}
}

func bodyTag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatches applies the weak comparison If-None-Match calls for.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
