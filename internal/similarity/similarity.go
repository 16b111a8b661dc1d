// Package similarity implements the pairwise metrics used to compare a query
// image with a corpus candidate. Every function is pure and never modifies
// its inputs.
package similarity

import "math"

const (
	// StructuralSamples is the number of positions sampled per buffer.
	StructuralSamples = 1000

	// HistogramBins is the number of intensity bins.
	HistogramBins = 256

	// HistogramSamples is the approximate sample budget per histogram.
	HistogramSamples = 5000

	structuralC1 = 0.01 * 255 * 255
	structuralC2 = 0.03 * 255 * 255
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Empty, mismatched-length, or zero-norm input yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	return max(-1, min(1, sim))
}

// Structural computes an SSIM-style correlation between two raw buffers from
// StructuralSamples strided positions of each.
func Structural(a, b []byte) float64 {
	sa := strided(a, StructuralSamples)
	sb := strided(b, StructuralSamples)
	n := min(len(sa), len(sb))
	if n == 0 {
		return 0
	}
	sa, sb = sa[:n], sb[:n]

	var m1, m2 float64
	for i := range n {
		m1 += sa[i]
		m2 += sb[i]
	}
	m1 /= float64(n)
	m2 /= float64(n)

	var v1, v2, cov float64
	for i := range n {
		d1 := sa[i] - m1
		d2 := sb[i] - m2
		v1 += d1 * d1
		v2 += d2 * d2
		cov += d1 * d2
	}
	v1 /= float64(n)
	v2 /= float64(n)
	cov /= float64(n)

	num := (2*m1*m2 + structuralC1) * (2*cov + structuralC2)
	den := (m1*m1 + m2*m2 + structuralC1) * (v1 + v2 + structuralC2)
	if den == 0 {
		return 0
	}
	return num / den
}

// strided samples up to limit bytes at stride max(1, len/limit).
func strided(buf []byte, limit int) []float64 {
	if len(buf) == 0 {
		return nil
	}
	stride := max(1, len(buf)/limit)
	out := make([]float64, 0, limit)
	for i := 0; i < len(buf) && len(out) < limit; i += stride {
		out = append(out, float64(buf[i]))
	}
	return out
}
