package features

import (
	"context"
	"math"
)

// Transform maps a normalised region mean in [0,1] to a descriptor component.
type Transform func(x float64) float64

// EdgeTransform emphasises distance from mid-grey, for contour-like descriptors.
func EdgeTransform(x float64) float64 {
	return math.Abs(x-0.5) * 2
}

// SaturatingTransform squashes region means around mid-grey.
func SaturatingTransform(x float64) float64 {
	return math.Tanh(4 * (x - 0.5))
}

// Window selects the fraction [Start, End) of the buffer to sample.
type Window struct {
	Start float64
	End   float64
}

// FullWindow covers the whole buffer.
var FullWindow = Window{Start: 0, End: 1}

// Params configures a RegionExtractor.
type Params struct {
	Kind      string
	Regions   int
	Stride    int
	Window    Window
	Transform Transform
}

// Descriptor kinds.
const (
	KindFace     = "face"
	KindEye      = "eye"
	KindShape    = "shape"
	KindSymmetry = "symmetry"
)

// Predefined region descriptors.
var (
	FaceParams = Params{
		Kind:      KindFace,
		Regions:   128,
		Stride:    10,
		Window:    FullWindow,
		Transform: SaturatingTransform,
	}
	EyeParams = Params{
		Kind:      KindEye,
		Regions:   32,
		Stride:    50,
		Window:    Window{Start: 0.2, End: 0.5},
		Transform: EdgeTransform,
	}
	ShapeParams = Params{
		Kind:      KindShape,
		Regions:   16,
		Stride:    100,
		Window:    FullWindow,
		Transform: EdgeTransform,
	}
)

// SymmetryPairs is the number of mirrored region pairs in a symmetry profile.
const SymmetryPairs = 16

const symmetryStride = 10

// RegionStats holds the sampled statistics of one byte region.
type RegionStats struct {
	Mean     float64 // normalised to [0,1]
	Variance float64
	Samples  int
}

// SampleRegions partitions buf into n contiguous regions and samples every
// stride-th byte of each. Regions beyond a too-short buffer have zero samples.
func SampleRegions(buf []byte, n, stride int) []RegionStats {
	stats := make([]RegionStats, n)
	if n <= 0 {
		return stats
	}
	if stride < 1 {
		stride = 1
	}
	size := len(buf) / n
	if size == 0 {
		return stats
	}
	for i := range n {
		start := i * size
		end := start + size
		var sum, sumSq float64
		count := 0
		for j := start; j < end; j += stride {
			v := float64(buf[j]) / 255
			sum += v
			sumSq += v * v
			count++
		}
		if count == 0 {
			continue
		}
		mean := sum / float64(count)
		stats[i] = RegionStats{
			Mean:     mean,
			Variance: sumSq/float64(count) - mean*mean,
			Samples:  count,
		}
	}
	return stats
}

// RegionExtractor builds descriptors from strided byte-region means.
type RegionExtractor struct {
	params Params
}

// NewRegionExtractor creates an extractor for the given parameters.
func NewRegionExtractor(p Params) *RegionExtractor {
	if p.Transform == nil {
		p.Transform = func(x float64) float64 { return x }
	}
	if p.Window.End <= p.Window.Start {
		p.Window = FullWindow
	}
	return &RegionExtractor{params: p}
}

// Extract never fails; an empty or undersized buffer yields a zero vector.
func (e *RegionExtractor) Extract(_ context.Context, img []byte) (Vector, error) {
	return e.Describe(img), nil
}

// Describe is the context-free form of Extract.
func (e *RegionExtractor) Describe(img []byte) Vector {
	p := e.params
	raw := make(Vector, p.Regions)
	for i, s := range SampleRegions(window(img, p.Window), p.Regions, p.Stride) {
		if s.Samples == 0 {
			continue
		}
		raw[i] = float32(p.Transform(s.Mean))
	}
	return L2Normalize(raw)
}

// Dim returns the declared vector length.
func (e *RegionExtractor) Dim() int { return e.params.Regions }

// Name returns the descriptor kind.
func (e *RegionExtractor) Name() string { return "region/" + e.params.Kind }

// SymmetryProfile compares mirrored regions of the two buffer halves.
// Component i is the signed mean difference between left region i and
// right region n-1-i.
func SymmetryProfile(img []byte) Vector {
	half := len(img) / 2
	left := SampleRegions(img[:half], SymmetryPairs, symmetryStride)
	right := SampleRegions(img[half:], SymmetryPairs, symmetryStride)

	raw := make(Vector, SymmetryPairs)
	for i := range SymmetryPairs {
		l, r := left[i], right[SymmetryPairs-1-i]
		if l.Samples == 0 || r.Samples == 0 {
			continue
		}
		raw[i] = float32(l.Mean - r.Mean)
	}
	return L2Normalize(raw)
}

func window(buf []byte, w Window) []byte {
	if w == FullWindow {
		return buf
	}
	start := int(float64(len(buf)) * w.Start)
	end := int(float64(len(buf)) * w.End)
	start = max(0, min(start, len(buf)))
	end = max(start, min(end, len(buf)))
	return buf[start:end]
}
