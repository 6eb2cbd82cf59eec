// Package eas implements the Embedding Attribution Score kernel: a pure,
// deterministic numeric function with no store or network dependency.
// This is the one component that is legitimately standard-library-only
// (see DESIGN.md).
package eas

import (
	"math"
	"time"
)

// Result is the output of Compute: per-memory normalized scores, the raw
// (pre-normalization) products, and the wall-clock cost of the computation.
type Result struct {
	Scores    []float64
	RawScores []float64
	ComputeMS float64
}

// Compute runs the EAS algorithm over k memory embeddings M,
// the query embedding q, and the response embedding r.
//
//  1. L2-normalize each row of M; a zero-norm row maps to the zero vector
//     (norm substituted with 1 to avoid division by zero).
//  2. L2-normalize q and r; if either has zero norm, return all-zero scores
//     of length k.
//  3. s_mr = max(M̂·r̂, 0) elementwise; s_mq = max(M̂·q̂, 0) elementwise.
//  4. raw = s_mr ⊙ s_mq.
//  5. scores = raw / Σraw, or uniform 1/k when Σraw == 0.
//
// Compute is deterministic and side-effect free: identical inputs produce
// bit-identical Scores on every call.
func Compute(M [][]float64, q, r []float64) Result {
	start := time.Now()
	k := len(M)

	if k == 0 {
		return Result{Scores: []float64{}, RawScores: []float64{}, ComputeMS: elapsedMS(start)}
	}

	qHat, qNorm := normalize(q)
	rHat, rNorm := normalize(r)

	if qNorm == 0 || rNorm == 0 {
		return Result{
			Scores:    make([]float64, k),
			RawScores: make([]float64, k),
			ComputeMS: elapsedMS(start),
		}
	}

	raw := make([]float64, k)
	var total float64
	for i, row := range M {
		mHat, _ := normalize(row)
		sMR := math.Max(dot(mHat, rHat), 0)
		sMQ := math.Max(dot(mHat, qHat), 0)
		raw[i] = sMR * sMQ
		total += raw[i]
	}

	scores := make([]float64, k)
	if total > 0 {
		for i, x := range raw {
			scores[i] = x / total
		}
	} else {
		uniform := 1.0 / float64(k)
		for i := range scores {
			scores[i] = uniform
		}
	}

	return Result{Scores: scores, RawScores: raw, ComputeMS: elapsedMS(start)}
}

// normalize L2-normalizes v, returning the normalized vector and the
// original norm. A zero-norm input yields a zero vector and a reported
// norm of 0 (guarded at the call site step 1-2).
func normalize(v []float64) ([]float64, float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return make([]float64, len(v)), 0
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, norm
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
