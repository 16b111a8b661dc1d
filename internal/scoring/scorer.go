package scoring

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-finder/internal/features"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

var shapeExtractor = features.NewRegionExtractor(features.ShapeParams)

// Sample holds everything derived from one image buffer. It is computed once
// per image and compared against many others.
type Sample struct {
	Raw       []byte
	Vector    features.Vector
	Shape     features.Vector
	Symmetry  features.Vector
	Histogram similarity.Histogram
}

// NewSample extracts the descriptors of img. The buffer is referenced, not copied.
func NewSample(ctx context.Context, extractor features.Extractor, img []byte) (*Sample, error) {
	vec, err := extractor.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("extract %s descriptor: %w", extractor.Name(), err)
	}
	return &Sample{
		Raw:       img,
		Vector:    vec,
		Shape:     shapeExtractor.Describe(img),
		Symmetry:  features.SymmetryProfile(img),
		Histogram: similarity.NewHistogram(img),
	}, nil
}

// Scorer applies one strategy with one extractor.
type Scorer struct {
	strategy  *Strategy
	extractor features.Extractor
	metrics   []string
}

// NewScorer binds a strategy to the extractor that produces its descriptor.
func NewScorer(strategy *Strategy, extractor features.Extractor) *Scorer {
	return &Scorer{
		strategy:  strategy,
		extractor: extractor,
		metrics:   strategy.Metrics(),
	}
}

// Strategy returns the bound strategy.
func (s *Scorer) Strategy() *Strategy { return s.strategy }

// Extractor returns the bound extractor.
func (s *Scorer) Extractor() features.Extractor { return s.extractor }

// Sample prepares img for scoring.
func (s *Scorer) Sample(ctx context.Context, img []byte) (*Sample, error) {
	return NewSample(ctx, s.extractor, img)
}

// Score computes every metric the strategy reads. Each metric is evaluated
// independently of the others.
func (s *Scorer) Score(query, candidate *Sample) ScoreSet {
	scores := make(ScoreSet, len(s.metrics))
	for _, m := range s.metrics {
		scores[m] = metric(m, query, candidate)
	}
	return scores
}

// Confidence combines the scores of a pair into a clamped confidence.
func (s *Scorer) Confidence(scores ScoreSet, hints Hints) float64 {
	return s.strategy.Combine(scores, hints)
}

func metric(name string, q, c *Sample) float64 {
	switch name {
	case MetricVector:
		return similarity.Cosine(q.Vector, c.Vector)
	case MetricStructural:
		return similarity.Structural(q.Raw, c.Raw)
	case MetricColor:
		return similarity.IoU(q.Histogram, c.Histogram)
	case MetricSymmetry:
		return similarity.Cosine(q.Symmetry, c.Symmetry)
	case MetricShape:
		return similarity.Cosine(q.Shape, c.Shape)
	}
	return 0
}
