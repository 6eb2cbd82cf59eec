package attribution_test

import (
	"context"
	"testing"

	"github.com/cortexai/cortex-engine/internal/attribution"
	"github.com/cortexai/cortex-engine/internal/embed"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/internal/store/sqlite"
	"github.com/cortexai/cortex-engine/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMemory(t *testing.T, ctx context.Context, s store.Store, id, agentID string, embedding []float64) {
	t.Helper()
	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	m := &types.Memory{
		ID:        id,
		Content:   "content-" + id,
		Embedding: embedding,
		AgentID:   agentID,
		Tier:      types.TierWarm,
	}
	if err := txn.InsertMemory(ctx, m); err != nil {
		t.Fatalf("insert memory: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTwoPhaseEqualsSingleShot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewStatic(8)

	insertMemory(t, ctx, s, "m1", "agent-1", mustEmbed(embedder, "content-m1"))
	insertMemory(t, ctx, s, "m2", "agent-1", mustEmbed(embedder, "content-m2"))
	insertMemory(t, ctx, s, "m3", "agent-1", mustEmbed(embedder, "content-m3"))

	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{InputTokenCost: 0.001, OutputTokenCost: 0.002})

	txnID, status, err := pipeline.Initiate(ctx, "what happened yesterday", []string{"m1", "m2", "m3"}, "agent-1", "gpt-test", nil)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if status != "pending" {
		t.Fatalf("status = %s, want pending", status)
	}

	_, twoPhaseScores, _, err := pipeline.Complete(ctx, txnID, "yesterday was quiet", nil, nil, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, singleShotScores, _, err := pipeline.Create(ctx, attribution.CreateRequest{
		QueryText:          "what happened yesterday",
		ResponseText:       "yesterday was quiet",
		RetrievedMemoryIDs: []string{"m1", "m2", "m3"},
		AgentID:            "agent-1",
		Model:              "gpt-test",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(twoPhaseScores) != len(singleShotScores) {
		t.Fatalf("score count mismatch: two-phase=%d single-shot=%d", len(twoPhaseScores), len(singleShotScores))
	}
	for i := range twoPhaseScores {
		if twoPhaseScores[i].MemoryID != singleShotScores[i].MemoryID {
			t.Errorf("memory id mismatch at %d: %s vs %s", i, twoPhaseScores[i].MemoryID, singleShotScores[i].MemoryID)
		}
		if twoPhaseScores[i].Score != singleShotScores[i].Score {
			t.Errorf("score mismatch at %d: %v vs %v", i, twoPhaseScores[i].Score, singleShotScores[i].Score)
		}
	}
}

func TestSnapshotDeletionInvariance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewStatic(8)

	insertMemory(t, ctx, s, "m1", "agent-1", mustEmbed(embedder, "content-m1"))
	insertMemory(t, ctx, s, "m2", "agent-1", mustEmbed(embedder, "content-m2"))
	insertMemory(t, ctx, s, "m3", "agent-1", mustEmbed(embedder, "content-m3"))

	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{})

	txnID, _, err := pipeline.Initiate(ctx, "what happened yesterday", []string{"m1", "m2", "m3"}, "agent-1", "gpt-test", nil)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// The single-shot reference runs while m2 is still live, since Create
	// filters soft-deleted memories.
	_, freshScores, _, err := pipeline.Create(ctx, attribution.CreateRequest{
		QueryText:          "what happened yesterday",
		ResponseText:       "yesterday was quiet",
		RetrievedMemoryIDs: []string{"m1", "m2", "m3"},
		AgentID:            "agent-1",
		Model:              "gpt-test",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Soft-delete m2 between initiate and complete.
	deleteTxn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin delete: %v", err)
	}
	if err := deleteTxn.SoftDeleteMemory(ctx, "m2"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := deleteTxn.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}

	_, scores, _, err := pipeline.Complete(ctx, txnID, "yesterday was quiet", nil, nil, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(scores) != 3 {
		t.Fatalf("len(scores) = %d, want 3 (snapshot must ignore the interim soft-delete)", len(scores))
	}

	for i := range scores {
		if scores[i].Score != freshScores[i].Score {
			t.Errorf("score mismatch at %d: snapshot=%v fresh=%v", i, scores[i].Score, freshScores[i].Score)
		}
	}
}

func TestCompleteNonPendingTransactionConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewStatic(8)
	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{})

	txnID, _, err := pipeline.Initiate(ctx, "hello", nil, "agent-1", "gpt-test", nil)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, _, _, err := pipeline.Complete(ctx, txnID, "hi there", nil, nil, nil); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	if _, _, _, err := pipeline.Complete(ctx, txnID, "hi again", nil, nil, nil); err == nil {
		t.Fatalf("expected conflict completing an already-completed transaction")
	}
}

func TestCompleteNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	embedder := embed.NewStatic(8)
	pipeline := attribution.NewPipeline(s, embedder, types.AgentCostConfig{})

	if _, _, _, err := pipeline.Complete(ctx, "does-not-exist", "hi", nil, nil, nil); err == nil {
		t.Fatalf("expected not found error for unknown transaction id")
	}
}

func mustEmbed(p *embed.Static, text string) []float64 {
	vectors, err := p.Embed(context.Background(), []string{text})
	if err != nil {
		panic(err)
	}
	return vectors[0]
}
