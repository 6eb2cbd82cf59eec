package embed

import (
	"context"
	"fmt"
	"math"
)

// Static is a deterministic, network-free Provider for tests. It hashes
// each text into a fixed-dimension vector so repeated calls with the same
// input are bit-identical, which the attribution pipeline's snapshot tests
// depend on.
type Static struct {
	Dim int
}

// NewStatic returns a Static provider producing dim-dimensional vectors.
func NewStatic(dim int) *Static {
	return &Static{Dim: dim}
}

func (s *Static) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text, s.Dim)
	}
	return out, nil
}

// vectorFor derives a stable pseudo-embedding from text using FNV-1a so the
// same text always yields the same vector within a process and across
// processes.
func vectorFor(text string, dim int) []float64 {
	v := make([]float64, dim)
	for i := 0; i < dim; i++ {
		seed := fmt.Sprintf("%s#%d", text, i)
		var h uint64 = 1469598103934665603 // FNV-1a offset basis
		for _, b := range []byte(seed) {
			h ^= uint64(b)
			h *= 1099511628211
		}
		v[i] = float64(h%2000)/1000.0 - 1.0
	}

	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}
