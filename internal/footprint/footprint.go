// Package footprint implements the read-path reachability computations
// over the provenance graph: the data footprint F(u) and the influence
// footprint I(u), plus their deterministic serialization and
// certificate hashing.
package footprint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// UserFootprint is the data footprint F(u): every node reachable from
// userID's interactions via the derivation closure, bucketed by node type.
type UserFootprint struct {
	UserID            string   `json:"user_id"`
	MemoryNodeIDs     []string `json:"memory_node_ids"`
	SummaryNodeIDs    []string `json:"summary_node_ids"`
	EmbeddingNodeIDs  []string `json:"embedding_node_ids"`
	InteractionNodeIDs []string `json:"interaction_node_ids"`
}

// ComputeUserFootprint computes F(u): the least fixed point
// of the derivation closure starting from the memories directly created by
// userID's interactions, plus the interaction ids themselves by direct
// selection.
func ComputeUserFootprint(ctx context.Context, s store.Store, userID string) (*UserFootprint, error) {
	interactionIDs, err := s.InteractionIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list interactions for user %s: %w", userID, err)
	}

	baseMemoryIDs, err := s.CreationTargets(ctx, interactionIDs)
	if err != nil {
		return nil, fmt.Errorf("creation targets for user %s: %w", userID, err)
	}

	visited := make(map[types.NodeRef]bool)
	var frontier []types.NodeRef
	for _, id := range baseMemoryIDs {
		ref := types.NodeRef{Kind: types.DerivableMemory, ID: id}
		if !visited[ref] {
			visited[ref] = true
			frontier = append(frontier, ref)
		}
	}

	for len(frontier) > 0 {
		next, err := s.DerivationTargets(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("derivation targets: %w", err)
		}

		var fresh []types.NodeRef
		for _, ref := range next {
			if !visited[ref] {
				visited[ref] = true
				fresh = append(fresh, ref)
			}
		}
		frontier = fresh
	}

	fp := &UserFootprint{
		UserID:             userID,
		InteractionNodeIDs: interactionIDs,
	}
	for ref := range visited {
		switch ref.Kind {
		case types.DerivableMemory:
			fp.MemoryNodeIDs = append(fp.MemoryNodeIDs, ref.ID)
		case types.DerivableSummary:
			fp.SummaryNodeIDs = append(fp.SummaryNodeIDs, ref.ID)
		case types.DerivableEmbedding:
			fp.EmbeddingNodeIDs = append(fp.EmbeddingNodeIDs, ref.ID)
		}
	}

	sort.Strings(fp.MemoryNodeIDs)
	sort.Strings(fp.SummaryNodeIDs)
	sort.Strings(fp.EmbeddingNodeIDs)
	sort.Strings(fp.InteractionNodeIDs)

	return fp, nil
}

// ComputeInfluenceFootprint computes I(u): the distinct
// InteractionNode ids that are the target of some current, positive-score
// AttributionEdge whose source is a MemoryNode in F(u).
func ComputeInfluenceFootprint(ctx context.Context, s store.Store, fp *UserFootprint) ([]string, error) {
	ids, err := s.CurrentPositiveAttributionInteractions(ctx, fp.MemoryNodeIDs)
	if err != nil {
		return nil, fmt.Errorf("current positive attribution interactions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Serialize produces the canonical JSON object described in:
// keys user_id, memory_node_ids, summary_node_ids, embedding_node_ids,
// interaction_node_ids, lists in their natural (here: sorted) order.
func (fp *UserFootprint) Serialize() ([]byte, error) {
	ordered := orderedFootprint(fp)
	return json.Marshal(ordered)
}

// CertificateHash is the SHA-256 of the serialized footprint with keys
// sorted lexicographically, producing 64 hex chars.
func (fp *UserFootprint) CertificateHash() (string, error) {
	ordered := orderedFootprint(fp)

	// encoding/json marshals struct fields in declaration order, which is
	// not the lexicographic key order (embedding_node_ids <
	// interaction_node_ids < memory_node_ids < summary_node_ids < user_id),
	// so re-marshal through a map to force key-sorted output: Go's
	// encoding/json sorts map keys on Marshal.
	asMap := map[string]any{
		"user_id":              ordered.UserID,
		"memory_node_ids":      ordered.MemoryNodeIDs,
		"summary_node_ids":     ordered.SummaryNodeIDs,
		"embedding_node_ids":   ordered.EmbeddingNodeIDs,
		"interaction_node_ids": ordered.InteractionNodeIDs,
	}

	canonical, err := json.Marshal(asMap)
	if err != nil {
		return "", fmt.Errorf("marshal canonical footprint: %w", err)
	}

	sum := sha256.Sum256(bytes.TrimSpace(canonical))
	return hex.EncodeToString(sum[:]), nil
}

func orderedFootprint(fp *UserFootprint) *UserFootprint {
	out := &UserFootprint{
		UserID:             fp.UserID,
		MemoryNodeIDs:      append([]string(nil), fp.MemoryNodeIDs...),
		SummaryNodeIDs:     append([]string(nil), fp.SummaryNodeIDs...),
		EmbeddingNodeIDs:   append([]string(nil), fp.EmbeddingNodeIDs...),
		InteractionNodeIDs: append([]string(nil), fp.InteractionNodeIDs...),
	}
	sort.Strings(out.MemoryNodeIDs)
	sort.Strings(out.SummaryNodeIDs)
	sort.Strings(out.EmbeddingNodeIDs)
	sort.Strings(out.InteractionNodeIDs)
	return out
}
