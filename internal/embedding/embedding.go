// Package embedding defines the vector value object used for semantic
// similarity, together with the similarity math the search pipeline
// depends on.
package embedding

import (
	"math"

	"github.com/arkivo/arkivo/internal/errs"
)

// Dimension bounds accepted from embedding providers. Models in use
// today produce between 256 and 3072 components; the bounds leave
// headroom without accepting obviously broken vectors.
const (
	MinDimension = 128
	MaxDimension = 4096
)

// Vector is an immutable fixed-length embedding vector. The zero value
// is invalid; construct with New.
type Vector struct {
	components []float32
}

// New validates and copies components into a Vector. Every component
// must be a finite number and the dimension must lie within
// [MinDimension, MaxDimension].
func New(components []float32) (Vector, error) {
	if len(components) < MinDimension || len(components) > MaxDimension {
		return Vector{}, errs.Validationf("embedding dimension %d outside [%d, %d]",
			len(components), MinDimension, MaxDimension)
	}
	for i, c := range components {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Vector{}, errs.Validationf("embedding component %d is not finite", i)
		}
	}

	// Copy so later mutation of the caller's slice cannot reach us.
	cp := make([]float32, len(components))
	copy(cp, components)
	return Vector{components: cp}, nil
}

// Dimension returns the number of components.
func (v Vector) Dimension() int {
	return len(v.components)
}

// IsZero reports whether the vector was never constructed.
func (v Vector) IsZero() bool {
	return v.components == nil
}

// Components returns a copy of the underlying components.
func (v Vector) Components() []float32 {
	cp := make([]float32, len(v.components))
	copy(cp, v.components)
	return cp
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vector) Magnitude() float64 {
	var sum float64
	for _, c := range v.components {
		sum += float64(c) * float64(c)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of the vector. A zero-magnitude
// vector normalizes to itself.
func (v Vector) Normalize() Vector {
	mag := v.Magnitude()
	if mag == 0 {
		return Vector{components: append([]float32(nil), v.components...)}
	}
	out := make([]float32, len(v.components))
	for i, c := range v.components {
		out[i] = float32(float64(c) / mag)
	}
	return Vector{components: out}
}

// CosineSimilarity returns dot(v,o) / (|v|*|o|). When either vector has
// zero magnitude the result is exactly 0 rather than an error or NaN.
// Vectors of differing dimension are a validation error, never a silent
// truncation.
func (v Vector) CosineSimilarity(o Vector) (float64, error) {
	if len(v.components) != len(o.components) {
		return 0, errs.Validationf("dimension mismatch: %d vs %d",
			len(v.components), len(o.components))
	}

	var dot, magV, magO float64
	for i := range v.components {
		a := float64(v.components[i])
		b := float64(o.components[i])
		dot += a * b
		magV += a * a
		magO += b * b
	}
	if magV == 0 || magO == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magV) * math.Sqrt(magO)), nil
}

// EuclideanDistance returns the L2 distance between two vectors of
// equal dimension.
func (v Vector) EuclideanDistance(o Vector) (float64, error) {
	if len(v.components) != len(o.components) {
		return 0, errs.Validationf("dimension mismatch: %d vs %d",
			len(v.components), len(o.components))
	}

	var sum float64
	for i := range v.components {
		d := float64(v.components[i]) - float64(o.components[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
