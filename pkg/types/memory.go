// Package types defines the target data model shared by the attribution
// pipeline, the provenance graph, and the footprint engine: the flat
// transactional model (Memory, Transaction, AttributionScore, MemoryProfile,
// and peripheral records) and the graph model (nodes, edges, compliance
// certificates).
package types

import "time"

// MemoryTier classifies a memory's retrieval priority tier.
type MemoryTier string

const (
	TierHot  MemoryTier = "hot"
	TierWarm MemoryTier = "warm"
	TierCold MemoryTier = "cold"
)

// IsValid reports whether t is one of the known memory tiers.
func (t MemoryTier) IsValid() bool {
	switch t {
	case TierHot, TierWarm, TierCold:
		return true
	default:
		return false
	}
}

// Memory is a single unit of agent memory in the flat transactional model
// consumed by the attribution pipeline. Soft-deletion is by
// non-null DeletedAt; the attribution pipeline is the only component that
// consults it — the provenance graph's MemoryNode tracks lifecycle via its
// own Status field instead (, "soft deletion semantics").
type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding,omitempty"`

	Tokens         int            `json:"tokens"`
	AgentID        string         `json:"agent_id"`
	Tier           MemoryTier     `json:"tier"`
	Criticality    float64        `json:"criticality"` // in [0,1]
	Metadata       map[string]any `json:"metadata,omitempty"`
	RetrievalCount int            `json:"retrieval_count"`

	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// HasEmbedding reports whether the memory carries a usable embedding vector.
func (m *Memory) HasEmbedding() bool {
	return m != nil && len(m.Embedding) > 0
}

// IsDeleted reports whether the memory has been soft-deleted.
func (m *Memory) IsDeleted() bool {
	return m != nil && m.DeletedAt != nil
}
