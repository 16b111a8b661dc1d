package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/features"
	"github.com/kozaktomas/face-finder/internal/storage"
)

// IndexedMatch is a stored reference embedding close to the query.
type IndexedMatch struct {
	PersonID   string  `json:"person_id"`
	Similarity float64 `json:"similarity"`
	ImageURL   string  `json:"image_url"`
}

// IndexedResponse is the wire shape of an indexed search.
type IndexedResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Matches []IndexedMatch `json:"matches"`
}

// IndexedSearcher matches a query image against stored reference embeddings
// instead of scanning the corpus.
type IndexedSearcher struct {
	fetcher    storage.Fetcher
	extractor  features.Extractor
	embeddings database.EmbeddingReader
	logger     *slog.Logger
}

func NewIndexedSearcher(fetcher storage.Fetcher, extractor features.Extractor, embeddings database.EmbeddingReader, logger *slog.Logger) *IndexedSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexedSearcher{
		fetcher:    fetcher,
		extractor:  extractor,
		embeddings: embeddings,
		logger:     logger,
	}
}

// Search embeds the image at imageURL and returns up to limit stored
// embeddings with cosine similarity >= threshold, most similar first.
// threshold <= 0 and limit <= 0 select the defaults.
func (s *IndexedSearcher) Search(ctx context.Context, imageURL string, threshold float64, limit int) ([]IndexedMatch, error) {
	if imageURL == "" {
		return nil, ErrMissingImageURL
	}
	if threshold <= 0 {
		threshold = constants.DefaultIndexedThreshold
	}
	if limit <= 0 {
		limit = constants.DefaultIndexedLimit
	}
	limit = min(limit, constants.MaxIndexedLimit)

	img, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch query image: %w", err)
	}
	vec, err := s.extractor.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}

	// Similarity >= threshold is distance <= 1-threshold; the store compares
	// strictly, so nudge the bound.
	maxDistance := 1 - threshold + 1e-9
	found, distances, err := s.embeddings.FindSimilarWithDistance(ctx, vec, limit, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("find similar embeddings: %w", err)
	}

	matches := make([]IndexedMatch, 0, len(found))
	for i := range found {
		matches = append(matches, IndexedMatch{
			PersonID:   found[i].PersonID,
			Similarity: 1 - distances[i],
			ImageURL:   found[i].ImageURL,
		})
	}
	s.logger.InfoContext(ctx, "indexed search finished", "matches", len(matches), "threshold", threshold)
	return matches, nil
}
