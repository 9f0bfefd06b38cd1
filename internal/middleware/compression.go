package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	brotliPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression)
		},
	}
)

// resetWriteCloser is the subset of gzip.Writer and brotli.Writer the pool uses.
type resetWriteCloser interface {
	io.WriteCloser
	Reset(io.Writer)
	Flush() error
}

// compressResponseWriter compresses the body once the status is known.
// Bodiless statuses pass through untouched.
type compressResponseWriter struct {
	http.ResponseWriter
	encoding    string
	pool        *sync.Pool
	zw          resetWriteCloser
	wroteHeader bool
	passthrough bool
}

func (w *compressResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.ResponseWriter.Header()
	if status == http.StatusNoContent || status == http.StatusNotModified || h.Get("Content-Encoding") != "" {
		w.passthrough = true
	} else {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length") // Length will change after compression
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.passthrough {
		return w.ResponseWriter.Write(b)
	}
	if w.zw == nil {
		w.zw = w.pool.Get().(resetWriteCloser)
		w.zw.Reset(w.ResponseWriter)
	}
	return w.zw.Write(b)
}

// Flush pushes compressed bytes to the client, for streamed responses.
func (w *compressResponseWriter) Flush() {
	if w.zw != nil {
		w.zw.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressResponseWriter) close() {
	if w.zw == nil {
		return
	}
	w.zw.Close()
	w.zw.Reset(io.Discard)
	w.pool.Put(w.zw)
	w.zw = nil
}

// Compress returns a middleware that compresses HTTP responses with brotli or
// gzip, whichever the client accepts, preferring brotli. WebSocket upgrades
// and HEAD requests are left alone.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		if r.Method == http.MethodHead || r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		var pool *sync.Pool
		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		switch encoding {
		case "br":
			pool = &brotliPool
		case "gzip":
			pool = &gzipPool
		default:
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressResponseWriter{ResponseWriter: w, encoding: encoding, pool: pool}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}

// negotiateEncoding picks br over gzip from an Accept-Encoding header.
// Codings listed with q=0 are refused.
func negotiateEncoding(header string) string {
	var br, gz bool
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q := strings.ReplaceAll(strings.TrimSpace(params), " ", ""); q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(coding)) {
		case "br":
			br = true
		case "gzip":
			gz = true
		case "*":
			br, gz = true, true
		}
	}
	switch {
	case br:
		return "br"
	case gz:
		return "gzip"
	}
	return ""
}
