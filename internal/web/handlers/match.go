package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-finder/internal/matcher"
)

// Matcher runs the corpus-scanning pipeline.
type Matcher interface {
	Match(ctx context.Context, req matcher.Request) (*matcher.Result, error)
}

// IndexedSearcher searches stored reference embeddings.
type IndexedSearcher interface {
	Search(ctx context.Context, imageURL string, threshold float64, limit int) ([]matcher.IndexedMatch, error)
}

var errIndexUnavailable = errors.New("indexed search requires DATABASE_URL")

// MatchHandler handles image matching endpoints
type MatchHandler struct {
	pipeline Matcher
	indexed  IndexedSearcher
	logger   *slog.Logger
}

// NewMatchHandler creates a match handler. indexed may be nil when no
// database is configured.
func NewMatchHandler(pipeline Matcher, indexed IndexedSearcher, logger *slog.Logger) *MatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchHandler{pipeline: pipeline, indexed: indexed, logger: logger}
}

// MatchRequest is the body of POST /match. The camelCase keys are accepted
// for clients of the previous edge function.
type MatchRequest struct {
	SubjectID      string `json:"subject_id"`
	ImageURL       string `json:"image_url"`
	PersonID       string `json:"personId"`
	ImageURLCompat string `json:"imageUrl"`
}

func (m MatchRequest) request() matcher.Request {
	return matcher.Request{
		SubjectID: firstNonEmpty(m.SubjectID, m.PersonID),
		ImageURL:  firstNonEmpty(m.ImageURL, m.ImageURLCompat),
	}
}

// Match scans the corpus for images similar to the query image.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var body MatchRequest
	if err := decodeJSON(r, &body); err != nil {
		respondMatchFailure(w, http.StatusBadRequest, err)
		return
	}
	req := body.request()

	res, err := h.pipeline.Match(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "image matching failed",
			"subject_id", sanitizeForLog(req.SubjectID),
			"image_url", sanitizeForLog(req.ImageURL),
			"error", err)
		respondMatchFailure(w, failureStatus(err), err)
		return
	}
	respondJSON(w, http.StatusOK, matcher.NewResponse(res))
}

// IndexedMatchRequest is the body of POST /match/indexed.
type IndexedMatchRequest struct {
	ImageURL       string  `json:"image_url"`
	ImageURLCompat string  `json:"imageUrl"`
	Threshold      float64 `json:"threshold"`
	Limit          int     `json:"limit"`
}

// MatchIndexed finds the nearest stored reference embeddings.
func (h *MatchHandler) MatchIndexed(w http.ResponseWriter, r *http.Request) {
	if h.indexed == nil {
		respondJSON(w, http.StatusServiceUnavailable, matcher.IndexedResponse{
			Error:   errIndexUnavailable.Error(),
			Matches: []matcher.IndexedMatch{},
		})
		return
	}

	var body IndexedMatchRequest
	if err := decodeJSON(r, &body); err != nil {
		respondJSON(w, http.StatusBadRequest, matcher.IndexedResponse{Error: err.Error(), Matches: []matcher.IndexedMatch{}})
		return
	}
	imageURL := firstNonEmpty(body.ImageURL, body.ImageURLCompat)

	matches, err := h.indexed.Search(r.Context(), imageURL, body.Threshold, body.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "indexed matching failed", "image_url", sanitizeForLog(imageURL), "error", err)
		respondJSON(w, failureStatus(err), matcher.IndexedResponse{Error: err.Error(), Matches: []matcher.IndexedMatch{}})
		return
	}
	if matches == nil {
		matches = []matcher.IndexedMatch{}
	}
	respondJSON(w, http.StatusOK, matcher.IndexedResponse{Success: true, Matches: matches})
}
