package features

import (
	"context"
	"math/rand/v2"
	"sync"
)

// RandomExtractor returns a uniformly random normalised vector for every
// image. It stands in when no descriptor model is configured and must not be
// relied on for real matching.
type RandomExtractor struct {
	dim int
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomExtractor creates a random extractor. The same seed yields the
// same sequence of vectors.
func NewRandomExtractor(dim int, seed uint64) *RandomExtractor {
	if dim <= 0 {
		dim = FaceParams.Regions
	}
	return &RandomExtractor{
		dim: dim,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (e *RandomExtractor) Extract(_ context.Context, _ []byte) (Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := make(Vector, e.dim)
	for i := range v {
		v[i] = float32(e.rng.Float64()*2 - 1)
	}
	return L2Normalize(v), nil
}

func (e *RandomExtractor) Dim() int { return e.dim }

func (e *RandomExtractor) Name() string { return "random" }
