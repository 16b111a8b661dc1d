// Package matcher scans a corpus for images similar to a query image and
// ranks the results.
package matcher

import (
	"cmp"
	"slices"
)

// Match is one corpus item that reached the confidence threshold.
type Match struct {
	CandidateID string  `json:"candidate_id"`
	Confidence  float64 `json:"confidence"`
	ImageURL    string  `json:"image_url"`
}

// Rank keeps candidates with confidence >= threshold, orders them by
// confidence descending and truncates to topK. Equal confidences keep their
// input order. topK <= 0 means no limit. The input slice is not modified.
func Rank(candidates []Match, threshold float64, topK int) []Match {
	ranked := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= threshold {
			ranked = append(ranked, c)
		}
	}

	slices.SortStableFunc(ranked, func(a, b Match) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
