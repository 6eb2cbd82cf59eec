package eas_test

import (
	"math"
	"testing"

	"github.com/cortexai/cortex-engine/internal/eas"
)

func unit(v ...float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestComputeScenarioS1(t *testing.T) {
	M := [][]float64{{1, 0, 0}}
	res := eas.Compute(M, []float64{1, 0, 0}, []float64{1, 0, 0})

	if len(res.Scores) != 1 {
		t.Fatalf("len(Scores) = %d, want 1", len(res.Scores))
	}
	if math.Abs(res.Scores[0]-1.0) > 1e-9 {
		t.Errorf("Scores[0] = %v, want 1.0", res.Scores[0])
	}
}

func TestComputeScenarioS2(t *testing.T) {
	q := unit(1, 0.5, 0)
	r := unit(0.8, 0.6, 0)
	m1 := []float64{1, 0, 0}
	m2 := []float64{0, 1, 0}
	M := [][]float64{m1, m2}

	res := eas.Compute(M, q, r)

	m1Hat := unit(1, 0, 0)
	m2Hat := unit(0, 1, 0)

	dot := func(a, b []float64) float64 {
		var s float64
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}

	raw1 := math.Max(dot(m1Hat, r), 0) * math.Max(dot(m1Hat, q), 0)
	raw2 := math.Max(dot(m2Hat, r), 0) * math.Max(dot(m2Hat, q), 0)
	total := raw1 + raw2

	wantScores := []float64{raw1 / total, raw2 / total}

	for i, want := range wantScores {
		if math.Abs(res.Scores[i]-want) > 1e-9 {
			t.Errorf("Scores[%d] = %v, want %v", i, res.Scores[i], want)
		}
	}
}

func TestComputeScoresSumToOne(t *testing.T) {
	M := [][]float64{
		{1, 0, 0},
		{0.5, 0.5, 0},
		{0, 0, 1},
		{-1, 0, 0},
	}
	q := []float64{0.3, 0.7, 0.1}
	r := []float64{0.2, 0.4, 0.9}

	res := eas.Compute(M, q, r)

	got := sum(res.Scores)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("sum(Scores) = %v, want 1.0", got)
	}
}

func TestComputeScoresNonNegative(t *testing.T) {
	M := [][]float64{
		{1, 0, 0},
		{-1, 0, 0},
		{0, -1, 0},
	}
	q := []float64{1, 1, 1}
	r := []float64{-1, -1, -1}

	res := eas.Compute(M, q, r)

	for i, s := range res.Scores {
		if s < 0 {
			t.Errorf("Scores[%d] = %v, want >= 0", i, s)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	M := [][]float64{{0.1, 0.9, 0.2}, {0.4, 0.1, 0.8}}
	q := []float64{0.5, 0.5, 0.5}
	r := []float64{0.2, 0.3, 0.4}

	first := eas.Compute(M, q, r)
	for i := 0; i < 10; i++ {
		next := eas.Compute(M, q, r)
		for j := range first.Scores {
			if first.Scores[j] != next.Scores[j] {
				t.Fatalf("run %d: Scores[%d] = %v, want bit-identical %v", i, j, next.Scores[j], first.Scores[j])
			}
		}
	}
}

func TestComputeAllOrthogonalFallsBackToUniform(t *testing.T) {
	M := [][]float64{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	q := []float64{0, 0, 1}
	r := []float64{0, 1, 0}

	res := eas.Compute(M, q, r)

	want := 1.0 / 3.0
	for i, s := range res.Scores {
		if math.Abs(s-want) > 1e-9 {
			t.Errorf("Scores[%d] = %v, want %v (uniform fallback)", i, s, want)
		}
	}
}

func TestComputeZeroNormQueryReturnsAllZero(t *testing.T) {
	M := [][]float64{{1, 0, 0}, {0, 1, 0}}
	q := []float64{0, 0, 0}
	r := []float64{1, 0, 0}

	res := eas.Compute(M, q, r)

	for i, s := range res.Scores {
		if s != 0 {
			t.Errorf("Scores[%d] = %v, want 0", i, s)
		}
	}
	for i, s := range res.RawScores {
		if s != 0 {
			t.Errorf("RawScores[%d] = %v, want 0", i, s)
		}
	}
}

func TestComputeEmptyMemorySet(t *testing.T) {
	res := eas.Compute(nil, []float64{1, 0, 0}, []float64{1, 0, 0})

	if len(res.Scores) != 0 {
		t.Errorf("len(Scores) = %d, want 0", len(res.Scores))
	}
	if len(res.RawScores) != 0 {
		t.Errorf("len(RawScores) = %d, want 0", len(res.RawScores))
	}
}

func TestComputeZeroNormMemoryRowContributesZero(t *testing.T) {
	M := [][]float64{{0, 0, 0}, {1, 0, 0}}
	q := []float64{1, 0, 0}
	r := []float64{1, 0, 0}

	res := eas.Compute(M, q, r)

	if res.RawScores[0] != 0 {
		t.Errorf("RawScores[0] = %v, want 0 for zero-norm memory row", res.RawScores[0])
	}
	if math.Abs(res.Scores[1]-1.0) > 1e-9 {
		t.Errorf("Scores[1] = %v, want 1.0", res.Scores[1])
	}
}
