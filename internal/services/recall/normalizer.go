package recall

import (
	"fmt"
	"math"
)

// Normalizer maps a raw vector-index score onto [0,1]. Indexes differ in
// what they report (cosine similarity, inner product, distance), so the
// mapping is pluggable per index type and selected from configuration.
type Normalizer interface {
	Normalize(raw float64) float64
	Name() string
}

// NewNormalizer returns the normalizer named in config. Supported names:
// "clamp" for cosine-style scores already near [0,1], and "sigmoid" for
// unbounded inner-product scores.
func NewNormalizer(name string) (Normalizer, error) {
	switch name {
	case "clamp", "":
		return clampNormalizer{}, nil
	case "sigmoid":
		return sigmoidNormalizer{}, nil
	default:
		return nil, fmt.Errorf("unknown score normalization %q", name)
	}
}

// clampNormalizer pins the raw score into [0,1]. Appropriate when the
// index reports cosine similarity.
type clampNormalizer struct{}

func (clampNormalizer) Normalize(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}

func (clampNormalizer) Name() string { return "clamp" }

// sigmoidNormalizer squashes an unbounded score into (0,1). Appropriate
// when the index reports raw inner products.
type sigmoidNormalizer struct{}

func (sigmoidNormalizer) Normalize(raw float64) float64 {
	return 1 / (1 + math.Exp(-raw))
}

func (sigmoidNormalizer) Name() string { return "sigmoid" }
