package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/bhtree/internal/apierr"
)

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeAPIError(t *testing.T, rr *httptest.ResponseRecorder) *apierr.Error {
	t.Helper()
	var resp apierr.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", rr.Body.String(), err)
	}
	if resp.Error == nil {
		t.Fatalf("expected an error body, got %s", rr.Body.String())
	}
	return resp.Error
}

const fourCorners = `[{"x":2.5,"y":2.5},{"x":7.5,"y":2.5},{"x":2.5,"y":7.5},{"x":7.5,"y":7.5}]`

func TestBuildTree(t *testing.T) {
	h := BuildTree(TreeConfig{MaxParticles: 10, Theta: 0.5})
	rr := postJSON(t, h, "/api/tree", `{"boundary":{"x":0,"y":0,"w":10,"h":10},"particles":`+fourCorners+`,"dump":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp TreeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Inserted != 4 || resp.Stats.Nodes != 5 || resp.Stats.Leaves != 4 || resp.Stats.MaxDepth != 1 {
		t.Errorf("unexpected stats %+v", resp.Stats)
	}
	if resp.Centroid == nil {
		t.Fatal("expected a centroid")
	}
	// zero weights count as 1
	if resp.Centroid.X != 5 || resp.Centroid.Y != 5 || resp.Centroid.Weight != 4 {
		t.Errorf("expected centroid (5, 5, 4), got %+v", *resp.Centroid)
	}
	if resp.Dump == "" {
		t.Error("expected a dump when requested")
	}
}

func TestBuildTree_DefaultBoundary(t *testing.T) {
	h := BuildTree(TreeConfig{})
	rr := postJSON(t, h, "/api/tree", `{"particles":`+fourCorners+`}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp TreeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Dropped != 0 || resp.Stats.Inserted != 4 {
		t.Errorf("derived boundary should hold every particle, got %+v", resp.Stats)
	}
	if resp.Boundary.W <= 5 || resp.Boundary.W != resp.Boundary.H {
		t.Errorf("expected a padded square boundary, got %v", resp.Boundary)
	}
	if resp.Dump != "" {
		t.Error("dump should be omitted unless requested")
	}
}

func TestBuildTree_DropsOutside(t *testing.T) {
	h := BuildTree(TreeConfig{})
	rr := postJSON(t, h, "/api/tree", `{"boundary":{"w":1,"h":1},"particles":[{"x":0.5,"y":0.5},{"x":3,"y":3}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp TreeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Inserted != 1 || resp.Stats.Dropped != 1 {
		t.Errorf("expected 1 inserted and 1 dropped, got %+v", resp.Stats)
	}
}

func TestBuildTree_Errors(t *testing.T) {
	h := BuildTree(TreeConfig{MaxParticles: 3})

	tests := []struct {
		name   string
		body   string
		status int
		code   apierr.ErrorCode
	}{
		{"too many particles", `{"particles":` + fourCorners + `}`, http.StatusRequestEntityTooLarge, apierr.ErrTreeTooLarge},
		{"zero size boundary", `{"boundary":{"w":0,"h":1},"particles":[]}`, http.StatusBadRequest, apierr.ErrTreeInvalidBoundary},
		{"negative weight", `{"particles":[{"x":1,"y":1,"weight":-1}]}`, http.StatusBadRequest, apierr.ErrValidationInvalidValue},
		{"unknown field", `{"particles":[],"depth":3}`, http.StatusBadRequest, apierr.ErrValidationInvalidFormat},
		{"malformed", `{"particles":[`, http.StatusBadRequest, apierr.ErrValidationInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, h, "/api/tree", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if got := decodeAPIError(t, rr).Code; got != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestInteractions(t *testing.T) {
	h := Interactions(TreeConfig{Theta: 0.5})
	rr := postJSON(t, h, "/api/interactions", `{"boundary":{"w":10,"h":10},"particles":`+fourCorners+`}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp InteractionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Theta != 0.5 {
		t.Errorf("expected default theta 0.5, got %v", resp.Theta)
	}
	if len(resp.Results) != 4 {
		t.Fatalf("expected one result per particle, got %d", len(resp.Results))
	}
	// Each corner is close enough to open the root and sees the other three
	// leaves directly; itself is skipped.
	for _, res := range resp.Results {
		if res.Count != 3 || res.Virtual != 0 || len(res.Pairs) != 3 {
			t.Errorf("source %+v: expected 3 real pairs, got count=%d virtual=%d", res.Source, res.Count, res.Virtual)
		}
		for _, p := range res.Pairs {
			if p.Partner == res.Source {
				t.Errorf("source %+v paired with itself", res.Source)
			}
		}
	}
	if resp.Total != 12 {
		t.Errorf("expected 12 pairs in total, got %d", resp.Total)
	}
}

func TestInteractions_FarSource(t *testing.T) {
	h := Interactions(TreeConfig{Theta: 0.5})
	rr := postJSON(t, h, "/api/interactions",
		`{"boundary":{"w":10,"h":10},"particles":`+fourCorners+`,"sources":[{"x":100,"y":100}],"theta":0.5,"count_only":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp InteractionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(resp.Results))
	}
	res := resp.Results[0]
	if res.Count != 1 || res.Virtual != 1 {
		t.Errorf("far source should see the root centroid only, got %+v", res)
	}
	if res.Pairs != nil {
		t.Error("count_only should omit pairs")
	}
}

func TestInteractions_InvalidTheta(t *testing.T) {
	h := Interactions(TreeConfig{Theta: 0.5})
	for _, theta := range []string{"0", "-1"} {
		rr := postJSON(t, h, "/api/interactions", `{"particles":`+fourCorners+`,"theta":`+theta+`}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("theta %s: expected 400, got %d", theta, rr.Code)
		}
		if got := decodeAPIError(t, rr).Code; got != apierr.ErrTreeInvalidTheta {
			t.Errorf("theta %s: expected %s, got %s", theta, apierr.ErrTreeInvalidTheta, got)
		}
	}
}

func TestInteractions_InvalidSource(t *testing.T) {
	h := Interactions(TreeConfig{Theta: 0.5})
	rr := postJSON(t, h, "/api/interactions", `{"particles":`+fourCorners+`,"sources":[{"x":1,"y":1,"weight":-2}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	apiErr := decodeAPIError(t, rr)
	if apiErr.Details["field"] != "sources" {
		t.Errorf("expected the error to name sources, got %v", apiErr.Details)
	}
}
