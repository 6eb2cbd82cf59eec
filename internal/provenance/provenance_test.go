package provenance_test

import (
	"context"
	"testing"

	"github.com/cortexai/cortex-engine/internal/provenance"
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

func TestAttributionVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	interaction, err := provenance.RecordTransaction(ctx, txn, "alice", "q", "r", "agent-1", 0.01, []string{"memA"}, []float64{0.7}, types.ScoreEAS, nil, nil)
	if err != nil {
		t.Fatalf("record transaction: %v", err)
	}

	if _, err := provenance.UpdateAttribution(ctx, txn, "memA", interaction.ID, 0.65, types.ScoreCalibrated, nil); err != nil {
		t.Fatalf("update attribution 1: %v", err)
	}
	final, err := provenance.UpdateAttribution(ctx, txn, "memA", interaction.ID, 0.58, types.ScoreCalibrated, nil)
	if err != nil {
		t.Fatalf("update attribution 2: %v", err)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if final.Version != 3 {
		t.Errorf("final version = %d, want 3", final.Version)
	}
	if final.Score != 0.58 {
		t.Errorf("final score = %v, want 0.58", final.Score)
	}
	if !final.IsCurrent {
		t.Errorf("final edge should be current")
	}

	rows, err := s.RawQuery(ctx, `SELECT COUNT(*) FROM attribution_edges WHERE source_id = ? AND target_id = ?`, "memA", interaction.ID)
	if err != nil {
		t.Fatalf("raw query: %v", err)
	}
	defer rows.Close()
	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			t.Fatalf("scan count: %v", err)
		}
	}
	if count != 3 {
		t.Fatalf("total attribution edge rows = %d, want 3", count)
	}

	currentRows, err := s.RawQuery(ctx, `SELECT COUNT(*) FROM attribution_edges WHERE source_id = ? AND target_id = ? AND is_current = 1`, "memA", interaction.ID)
	if err != nil {
		t.Fatalf("raw query current: %v", err)
	}
	defer currentRows.Close()
	var currentCount int
	if currentRows.Next() {
		if err := currentRows.Scan(&currentCount); err != nil {
			t.Fatalf("scan current count: %v", err)
		}
	}
	if currentCount != 1 {
		t.Fatalf("is_current rows = %d, want exactly 1", currentCount)
	}
}

func TestRecordMemoryCreationSliceIDsIncreasePerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	interaction, err := provenance.RecordTransaction(ctx, txn, "alice", "q", "r", "agent-1", 0, nil, nil, "", nil, nil)
	if err != nil {
		t.Fatalf("record transaction: %v", err)
	}

	mem1, emb1, err := provenance.RecordMemoryCreation(ctx, txn, interaction.ID, "first memory", "alice", types.MemoryRaw, "vec-ref-1", "model-v1", 8, 10, types.CriticalityNormal, nil)
	if err != nil {
		t.Fatalf("record memory creation 1: %v", err)
	}
	if emb1.Dimensions != 8 {
		t.Errorf("embedding dims = %d, want 8", emb1.Dimensions)
	}

	mem2, _, err := provenance.RecordMemoryCreation(ctx, txn, interaction.ID, "second memory", "alice", types.MemoryRaw, "vec-ref-2", "model-v1", 8, 12, types.CriticalityNormal, nil)
	if err != nil {
		t.Fatalf("record memory creation 2: %v", err)
	}

	if mem2.SliceID <= mem1.SliceID {
		t.Errorf("slice id did not increase: %d -> %d", mem1.SliceID, mem2.SliceID)
	}
	if mem1.ShardID != mem2.ShardID {
		t.Errorf("same user should hash to the same shard: %d vs %d", mem1.ShardID, mem2.ShardID)
	}
	if mem1.ShardID < 0 || mem1.ShardID > 15 {
		t.Errorf("shard id out of range: %d", mem1.ShardID)
	}
}

func TestRecordConsolidationDoesNotSynthesizeCreationEdge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	summary, err := provenance.RecordConsolidation(ctx, txn, []string{"memA", "memB"}, "summary content", "", nil)
	if err != nil {
		t.Fatalf("record consolidation: %v", err)
	}
	if summary.SourceMemoryCount != 2 {
		t.Errorf("source memory count = %d, want 2", summary.SourceMemoryCount)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rows, err := s.RawQuery(ctx, `SELECT COUNT(*) FROM creation_edges WHERE target_id = ?`, summary.ID)
	if err != nil {
		t.Fatalf("raw query: %v", err)
	}
	defer rows.Close()
	var count int
	if rows.Next() {
		rows.Scan(&count)
	}
	if count != 0 {
		t.Errorf("no CreationEdge should be synthesized for a summary, found %d", count)
	}
}
