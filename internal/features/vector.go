// Package features turns raw image bytes into fixed-length descriptor vectors.
package features

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when an extractor produces a vector whose
// length differs from the declared dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Vector is an L2-normalised descriptor.
type Vector []float32

// Extractor produces a descriptor vector from an image buffer.
// Implementations must not modify img.
type Extractor interface {
	Extract(ctx context.Context, img []byte) (Vector, error)
	Dim() int
	Name() string
}

// L2Normalize divides every component by the Euclidean norm of v.
// A zero vector is returned unchanged.
func L2Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make(Vector, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Norm returns the Euclidean length of v.
func Norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
