package features

import (
	"fmt"
)

// Extractor backends.
const (
	BackendRegion = "region"
	BackendRandom = "random"
	BackendRemote = "remote"
)

// Options configures New.
type Options struct {
	Descriptor   string // face, eye or shape; region backend only
	EmbeddingURL string
	Dim          int
	Seed         uint64
}

// ParamsFor returns the region parameters for a descriptor kind.
func ParamsFor(kind string) (Params, error) {
	switch kind {
	case "", KindFace:
		return FaceParams, nil
	case KindEye:
		return EyeParams, nil
	case KindShape:
		return ShapeParams, nil
	}
	return Params{}, fmt.Errorf("unknown descriptor kind %q", kind)
}

// New returns the extractor for the given backend name.
func New(backend string, opts Options) (Extractor, error) {
	switch backend {
	case "", BackendRegion:
		p, err := ParamsFor(opts.Descriptor)
		if err != nil {
			return nil, err
		}
		return NewRegionExtractor(p), nil
	case BackendRandom:
		return NewRandomExtractor(opts.Dim, opts.Seed), nil
	case BackendRemote:
		return NewRemoteExtractor(opts.EmbeddingURL, opts.Dim), nil
	}
	return nil, fmt.Errorf("unknown extractor %q", backend)
}
