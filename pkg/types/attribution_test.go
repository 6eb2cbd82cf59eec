package types_test

import (
	"math"
	"testing"

	"github.com/cortexai/cortex-engine/pkg/types"
)

func TestWelfordUpdateMatchesTwoPassVariance(t *testing.T) {
	samples := []float64{0.2, 0.8, 0.5, 0.5, 0.9, 0.1}

	p := &types.MemoryProfile{}
	for _, x := range samples {
		p.WelfordUpdate(x)
	}

	if p.RetrievalCount != len(samples) {
		t.Fatalf("retrieval count = %d, want %d", p.RetrievalCount, len(samples))
	}

	var sum float64
	for _, x := range samples {
		sum += x
	}
	mean := sum / float64(len(samples))

	var ss float64
	for _, x := range samples {
		ss += (x - mean) * (x - mean)
	}
	wantVariance := ss / float64(len(samples)-1)

	if math.Abs(p.MeanAttribution-mean) > 1e-9 {
		t.Errorf("mean = %v, want %v", p.MeanAttribution, mean)
	}
	if math.Abs(p.Variance()-wantVariance) > 1e-6 {
		t.Errorf("variance = %v, want %v", p.Variance(), wantVariance)
	}
}

func TestWelfordUpdateSingleSampleVarianceIsZero(t *testing.T) {
	p := &types.MemoryProfile{}
	p.WelfordUpdate(0.42)

	if p.RetrievalCount != 1 {
		t.Fatalf("retrieval count = %d, want 1", p.RetrievalCount)
	}
	if p.Variance() != 0 {
		t.Errorf("variance = %v, want 0", p.Variance())
	}
	if p.MeanAttribution != 0.42 {
		t.Errorf("mean = %v, want 0.42", p.MeanAttribution)
	}
}

func TestWelfordUpdateTrendClassification(t *testing.T) {
	p := &types.MemoryProfile{MeanAttribution: 0.5, RetrievalCount: 10}

	p.WelfordUpdate(0.6) // 0.6 > 1.1*0.5 = 0.55 -> up
	if p.Trend != types.TrendUp {
		t.Errorf("trend = %v, want up", p.Trend)
	}

	p2 := &types.MemoryProfile{MeanAttribution: 0.5, RetrievalCount: 10}
	p2.WelfordUpdate(0.4) // 0.4 < 0.9*0.5 = 0.45 -> down
	if p2.Trend != types.TrendDown {
		t.Errorf("trend = %v, want down", p2.Trend)
	}

	p3 := &types.MemoryProfile{MeanAttribution: 0.5, RetrievalCount: 10}
	p3.WelfordUpdate(0.5) // unchanged -> stable
	if p3.Trend != types.TrendStable {
		t.Errorf("trend = %v, want stable", p3.Trend)
	}
}

func TestIsValidMemoryNodeTransition(t *testing.T) {
	cases := []struct {
		from, to types.MemoryNodeStatus
		want     bool
	}{
		{types.MemoryActive, types.MemoryPendingDeletion, true},
		{types.MemoryActive, types.MemoryArchived, true},
		{types.MemoryActive, types.MemoryDeleted, false},
		{types.MemoryPendingDeletion, types.MemoryDeleted, true},
		{types.MemoryPendingDeletion, types.MemoryActive, false},
		{types.MemoryArchived, types.MemoryActive, false},
		{types.MemoryDeleted, types.MemoryActive, false},
	}

	for _, c := range cases {
		got := types.IsValidMemoryNodeTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("IsValidMemoryNodeTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
