package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestCompress_Gzip(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"positions should be compressed"}`))
	})

	tests := []struct {
		name           string
		acceptEncoding string
		expectGzip     bool
	}{
		{
			name:           "with gzip support",
			acceptEncoding: "gzip",
			expectGzip:     true,
		},
		{
			name:           "with gzip and deflate support",
			acceptEncoding: "gzip, deflate",
			expectGzip:     true,
		},
		{
			name:           "without gzip support",
			acceptEncoding: "",
			expectGzip:     false,
		},
		{
			name:           "with only deflate support",
			acceptEncoding: "deflate",
			expectGzip:     false,
		},
		{
			name:           "gzip refused with q=0",
			acceptEncoding: "gzip;q=0, deflate",
			expectGzip:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compress(testHandler)
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rr.Code)
			}

			contentEncoding := rr.Header().Get("Content-Encoding")
			if tt.expectGzip {
				if contentEncoding != "gzip" {
					t.Errorf("expected Content-Encoding: gzip, got %s", contentEncoding)
				}

				// Try to decompress the response
				gr, err := gzip.NewReader(rr.Body)
				if err != nil {
					t.Fatalf("failed to create gzip reader: %v", err)
				}
				defer gr.Close()

				body, err := io.ReadAll(gr)
				if err != nil {
					t.Fatalf("failed to read gzipped body: %v", err)
				}

				if !strings.Contains(string(body), "positions should") {
					t.Error("decompressed body doesn't contain expected content")
				}
			} else {
				if contentEncoding == "gzip" {
					t.Error("did not expect Content-Encoding: gzip")
				}

				body := rr.Body.String()
				if !strings.Contains(body, "positions should") {
					t.Error("body doesn't contain expected content")
				}
			}
		})
	}
}

func TestCompress_PrefersBrotli(t *testing.T) {
	handler := Compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"positions":[[0,0],[1,1]]}`))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/layout/runs/1", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if enc := rr.Header().Get("Content-Encoding"); enc != "br" {
		t.Fatalf("expected Content-Encoding: br, got %q", enc)
	}
	if vary := rr.Header().Get("Vary"); vary != "Accept-Encoding" {
		t.Errorf("expected Vary: Accept-Encoding, got %q", vary)
	}
	body, err := io.ReadAll(brotli.NewReader(rr.Body))
	if err != nil {
		t.Fatalf("failed to read brotli body: %v", err)
	}
	if string(body) != `{"positions":[[0,0],[1,1]]}` {
		t.Errorf("unexpected body %q", body)
	}
}

func TestCompress_SkipsBodilessAndUpgrade(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		upgrade bool
	}{
		{"no content", http.StatusNoContent, false},
		{"not modified", http.StatusNotModified, false},
		{"websocket upgrade", http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			req := httptest.NewRequest(http.MethodGet, "/ws/layout", nil)
			req.Header.Set("Accept-Encoding", "gzip, br")
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if enc := rr.Header().Get("Content-Encoding"); enc != "" {
				t.Errorf("expected no Content-Encoding, got %q", enc)
			}
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rr.Code)
			}
		})
	}
}

func TestNegotiateEncoding(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"gzip":              "gzip",
		"br":                "br",
		"gzip, br":          "br",
		"br;q=0, gzip":      "gzip",
		"BR;q=0.5":          "br",
		"*":                 "br",
		"identity, deflate": "",
	}
	for header, want := range tests {
		if got := negotiateEncoding(header); got != want {
			t.Errorf("negotiateEncoding(%q) = %q, want %q", header, got, want)
		}
	}
}
