package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/cortexai/cortex-engine/internal/store/sqlite"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// TestUpsertMemoryProfileWelfordMatchesGoReference feeds the same sample
// sequence through the SQL upsert (applied row-by-row inside real
// transactions) and through types.MemoryProfile.WelfordUpdate in memory,
// and checks the two land on the same mean/variance/trend. The SQL branch
// is the one actually exercised in production; WelfordUpdate exists as the
// reference it is checked against here.
func TestUpsertMemoryProfileWelfordMatchesGoReference(t *testing.T) {
	s, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	m := &types.Memory{ID: "m1", Content: "content", AgentID: "agent-1", Tier: types.TierWarm}
	seed, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin seed: %v", err)
	}
	if err := seed.InsertMemory(ctx, m); err != nil {
		t.Fatalf("insert memory: %v", err)
	}
	if err := seed.Commit(); err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	samples := []float64{0.8, 0.3, 0.95, 0.5, 0.6, 0.1, 0.99}
	now := time.Now().UTC()

	var reference types.MemoryProfile
	for _, x := range samples {
		reference.WelfordUpdate(x)

		txn, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if _, err := txn.UpsertMemoryProfileWelford(ctx, "m1", x, now); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := txn.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	got, err := s.GetMemoryProfile(ctx, "m1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got == nil {
		t.Fatal("profile not found")
	}

	const epsilon = 1e-9
	if diff := got.MeanAttribution - reference.MeanAttribution; diff > epsilon || diff < -epsilon {
		t.Errorf("mean = %v, want %v", got.MeanAttribution, reference.MeanAttribution)
	}
	if diff := got.M2 - reference.M2; diff > epsilon || diff < -epsilon {
		t.Errorf("m2 = %v, want %v", got.M2, reference.M2)
	}
	if got.RetrievalCount != reference.RetrievalCount {
		t.Errorf("retrieval count = %d, want %d", got.RetrievalCount, reference.RetrievalCount)
	}
	if diff := got.TotalAttribution - reference.TotalAttribution; diff > epsilon || diff < -epsilon {
		t.Errorf("total attribution = %v, want %v", got.TotalAttribution, reference.TotalAttribution)
	}
	if got.Trend != reference.Trend {
		t.Errorf("trend = %v, want %v", got.Trend, reference.Trend)
	}
}
