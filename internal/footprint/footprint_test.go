package footprint_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/cortexai/cortex-engine/internal/footprint"
	"github.com/cortexai/cortex-engine/internal/provenance"
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

// seedAliceWithBobInfluence builds: Alice records an interaction and a
// memory is created from it; Bob records an interaction retrieving
// Alice's memory with the given score (S6/S7,).
func seedAliceWithBobInfluence(t *testing.T, ctx context.Context, s store.Store, bobScore float64) (aliceInteraction, bobInteraction, aliceMemory string) {
	t.Helper()

	txn, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer txn.Rollback()

	alice, err := provenance.RecordTransaction(ctx, txn, "alice", "alice query", "alice response", "agent-1", 0, nil, nil, "", nil, nil)
	if err != nil {
		t.Fatalf("record alice transaction: %v", err)
	}

	mem, _, err := provenance.RecordMemoryCreation(ctx, txn, alice.ID, "alice's memory", "alice", types.MemoryRaw, "vec-ref", "model-v1", 8, 4, types.CriticalityNormal, nil)
	if err != nil {
		t.Fatalf("record memory creation: %v", err)
	}

	bob, err := provenance.RecordTransaction(ctx, txn, "bob", "bob query", "bob response", "agent-1", 0, []string{mem.ID}, []float64{bobScore}, types.ScoreEAS, nil, nil)
	if err != nil {
		t.Fatalf("record bob transaction: %v", err)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	return alice.ID, bob.ID, mem.ID
}

func TestFootprintIsolationAndInfluence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	aliceInteraction, bobInteraction, aliceMemory := seedAliceWithBobInfluence(t, ctx, s, 0.92)

	aliceFootprint, err := footprint.ComputeUserFootprint(ctx, s, "alice")
	if err != nil {
		t.Fatalf("compute alice footprint: %v", err)
	}
	bobFootprint, err := footprint.ComputeUserFootprint(ctx, s, "bob")
	if err != nil {
		t.Fatalf("compute bob footprint: %v", err)
	}

	if !contains(aliceFootprint.MemoryNodeIDs, aliceMemory) {
		t.Errorf("alice's memory should be in F(alice)")
	}
	if contains(bobFootprint.MemoryNodeIDs, aliceMemory) {
		t.Errorf("alice's memory should NOT be in F(bob)")
	}

	aliceInfluence, err := footprint.ComputeInfluenceFootprint(ctx, s, aliceFootprint)
	if err != nil {
		t.Fatalf("compute alice influence: %v", err)
	}
	if !contains(aliceInfluence, bobInteraction) {
		t.Errorf("bob's interaction should be in I(alice)")
	}
	if contains(aliceInfluence, aliceInteraction) {
		t.Errorf("alice's own interaction should NOT be in I(alice)")
	}
}

func TestZeroScoreIsNotInfluence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, bobInteraction, _ := seedAliceWithBobInfluence(t, ctx, s, 0.0)

	aliceFootprint, err := footprint.ComputeUserFootprint(ctx, s, "alice")
	if err != nil {
		t.Fatalf("compute alice footprint: %v", err)
	}

	aliceInfluence, err := footprint.ComputeInfluenceFootprint(ctx, s, aliceFootprint)
	if err != nil {
		t.Fatalf("compute alice influence: %v", err)
	}
	if contains(aliceInfluence, bobInteraction) {
		t.Errorf("a zero-score attribution must not count as influence")
	}
}

func TestCertificateHashStableAndWellFormed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAliceWithBobInfluence(t, ctx, s, 0.5)

	fp, err := footprint.ComputeUserFootprint(ctx, s, "alice")
	if err != nil {
		t.Fatalf("compute footprint: %v", err)
	}

	hash1, err := fp.CertificateHash()
	if err != nil {
		t.Fatalf("certificate hash: %v", err)
	}
	hash2, err := fp.CertificateHash()
	if err != nil {
		t.Fatalf("certificate hash 2: %v", err)
	}

	if hash1 != hash2 {
		t.Errorf("certificate hash is not stable: %s vs %s", hash1, hash2)
	}

	matched, err := regexp.MatchString(`^[0-9a-f]{64}$`, hash1)
	if err != nil {
		t.Fatalf("regexp: %v", err)
	}
	if !matched {
		t.Errorf("certificate hash %q is not 64 lowercase hex chars", hash1)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
