package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-finder/internal/backfill"
	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/matcher"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Matching: config.MatchingConfig{Extractor: "region", Workers: 4},
		Audit:    config.AuditConfig{Sink: "log"},
	}
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody unmarshals a recorded response
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
	return out
}

type fakeMatcher struct {
	mu     sync.Mutex
	got    []matcher.Request
	result *matcher.Result
	err    error
}

func (f *fakeMatcher) Match(_ context.Context, req matcher.Request) (*matcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	if f.err != nil {
		return &matcher.Result{Stage: matcher.StageFailed, Matches: []matcher.Match{}}, f.err
	}
	return f.result, nil
}

type fakeIndexed struct {
	matches   []matcher.IndexedMatch
	err       error
	threshold float64
	limit     int
}

func (f *fakeIndexed) Search(_ context.Context, imageURL string, threshold float64, limit int) ([]matcher.IndexedMatch, error) {
	if imageURL == "" {
		return nil, matcher.ErrMissingImageURL
	}
	f.threshold, f.limit = threshold, limit
	return f.matches, f.err
}

type fakeBackfiller struct {
	result   backfill.Result
	runErr   error
	release  chan struct{}
	regID    int64
	regErr   error
	personID string
	imageURL string
}

func (f *fakeBackfiller) Run(ctx context.Context, progress backfill.ProgressFunc) (backfill.Result, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return backfill.Result{}, ctx.Err()
		}
	}
	if progress != nil {
		progress(f.result, f.result.Processed)
	}
	return f.result, f.runErr
}

func (f *fakeBackfiller) Register(_ context.Context, personID, imageURL string) (int64, error) {
	f.personID, f.imageURL = personID, imageURL
	return f.regID, f.regErr
}
