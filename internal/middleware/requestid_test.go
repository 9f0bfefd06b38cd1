package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/bhtree/internal/logger"
)

func TestGenerateRequestID(t *testing.T) {
	id1, id2 := generateRequestID(), generateRequestID()
	if id1 == id2 {
		t.Error("generateRequestID should return unique IDs")
	}
	if len(id1) != 32 || !validRequestID(id1) {
		t.Errorf("expected a 32 character hex id, got %q", id1)
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"none supplied", "", false},
		{"reused", "bhsim-run.42_a", true},
		{"oversized", strings.Repeat("a", maxRequestIDLen+1), false},
		{"log injection", "abc\nlevel=ERROR", false},
		{"spaces", "my id", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID, _ = r.Context().Value(logger.RequestIDKey).(string)
			}))

			req := httptest.NewRequest("GET", "/api/layout/runs", nil)
			if tt.header != "" {
				req.Header[RequestIDHeader] = []string{tt.header}
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got == "" || got != ctxID {
				t.Fatalf("header %q and context %q should carry the same id", got, ctxID)
			}
			if tt.wantSame && got != tt.header {
				t.Errorf("expected client id %q to be reused, got %q", tt.header, got)
			}
			if !tt.wantSame && got == tt.header {
				t.Errorf("expected client id %q to be replaced", tt.header)
			}
		})
	}
}
