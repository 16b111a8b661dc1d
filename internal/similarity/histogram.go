package similarity

// Histogram is a normalised intensity distribution.
type Histogram [HistogramBins]float64

// NewHistogram builds the intensity histogram of buf from roughly
// HistogramSamples strided bytes. An empty buffer yields an all-zero histogram.
func NewHistogram(buf []byte) Histogram {
	var h Histogram
	if len(buf) == 0 {
		return h
	}
	stride := max(1, len(buf)/HistogramSamples)
	total := 0
	for i := 0; i < len(buf); i += stride {
		h[buf[i]]++
		total++
	}
	for i := range h {
		h[i] /= float64(total)
	}
	return h
}

// IoU returns the histogram intersection-over-union Σmin / Σmax, or 0 when
// both histograms are empty.
func IoU(h1, h2 Histogram) float64 {
	var inter, union float64
	for i := range h1 {
		inter += min(h1[i], h2[i])
		union += max(h1[i], h2[i])
	}
	if union == 0 {
		return 0
	}
	return inter / union
}

// ColorOverlap compares the intensity distributions of two raw buffers.
func ColorOverlap(a, b []byte) float64 {
	return IoU(NewHistogram(a), NewHistogram(b))
}
