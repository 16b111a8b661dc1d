package database

import "github.com/kozaktomas/face-finder/internal/similarity"

// CosineDistance computes 1 - cosine similarity, between 0 (identical) and 2
// (opposite). Mismatched, empty or zero vectors are maximally distant so they
// never rank as neighbors.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 || isZero(a) || isZero(b) {
		return MaxCosineDistance
	}
	return 1 - similarity.Cosine(a, b)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
