package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/features"
	"github.com/kozaktomas/face-finder/internal/matcher"
	"github.com/kozaktomas/face-finder/internal/scoring"
	"github.com/kozaktomas/face-finder/internal/storage"
)

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()

	dir := t.TempDir()
	img := bytes.Repeat([]byte("0123456789abcdefghij"), 200)
	for name, data := range map[string][]byte{
		"Jan_Novak.jpg": img,
		"Eva.jpg":       bytes.Repeat([]byte{7, 200, 13}, 700),
	} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	bucket, err := storage.NewLocalBucket(dir)
	if err != nil {
		t.Fatalf("NewLocalBucket failed: %v", err)
	}

	registry, err := scoring.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	strategy, err := registry.Get("")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scorer := scoring.NewScorer(strategy, features.NewRegionExtractor(features.FaceParams))
	pipeline := matcher.NewPipeline(bucket, storage.NewURLFetcher(bucket), scorer, matcher.Options{Workers: 2, Logger: logger})

	cfg := &config.Config{Web: config.WebConfig{APIKey: apiKey}}
	return NewServer(cfg, Deps{
		Pipeline: pipeline,
		Strategy: strategy,
		Registry: registry,
		Logger:   logger,
	}, 0, "127.0.0.1")
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"config", http.MethodGet, "/api/v1/config", "", http.StatusOK},
		{"strategies", http.MethodGet, "/api/v1/strategies", "", http.StatusOK},
		{"match", http.MethodPost, "/api/v1/match", `{"image_url":"Jan_Novak.jpg"}`, http.StatusOK},
		{"indexed without database", http.MethodPost, "/api/v1/match/indexed", `{"image_url":"Jan_Novak.jpg"}`, http.StatusServiceUnavailable},
		{"register without database", http.MethodPost, "/api/v1/embeddings", `{}`, http.StatusServiceUnavailable},
		{"backfill without database", http.MethodPost, "/api/v1/backfill", ``, http.StatusServiceUnavailable},
		{"unknown job", http.MethodGet, "/api/v1/backfill/abc", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/api/v1/match", "", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/api/v1/match", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Origin", "http://localhost:5173")
			rec := serve(s, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
				t.Errorf("Allow-Origin = %q", got)
			}
		})
	}
}

func TestMatchEndToEnd(t *testing.T) {
	s := newTestServer(t, "")

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewBufferString(`{"subject_id":"p1","image_url":"Jan_Novak.jpg"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp matcher.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if !resp.Success || resp.TotalScanned != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Matches) == 0 || resp.Matches[0].CandidateID != "Jan_Novak.jpg" {
		t.Errorf("expected the identical image first, got %+v", resp.Matches)
	}

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewBufferString(`{"image_url":"missing.jpg"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Success || resp.Error == "" || resp.Matches == nil || len(resp.Matches) != 0 {
		t.Errorf("unexpected failure response %+v", resp)
	}
}

func TestAPIKeyProtectsRoutes(t *testing.T) {
	s := newTestServer(t, "secret")

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health should not need a key, got %d", rec.Code)
	}
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("config without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("config with key = %d, want 200", rec.Code)
	}
}

func TestMatchRejectsFileLocators(t *testing.T) {
	s := newTestServer(t, "")

	secret := filepath.Join(t.TempDir(), "secret.key")
	if err := os.WriteFile(secret, bytes.Repeat([]byte("k"), 4000), 0o600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}

	for _, path := range []string{secret, "/nonexistent/x"} {
		t.Run(path, func(t *testing.T) {
			body := `{"image_url":"file://` + filepath.ToSlash(path) + `"}`
			rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewBufferString(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			var resp matcher.Response
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if resp.Success || len(resp.Matches) != 0 {
				t.Errorf("file locator produced matches: %+v", resp)
			}
			if bytes.Contains(rec.Body.Bytes(), []byte(path)) {
				t.Errorf("response echoes the path: %s", rec.Body.String())
			}
		})
	}
}
