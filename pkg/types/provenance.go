package types

import "time"

// NodeKind discriminates the five provenance node kinds.
type NodeKind string

const (
	NodeInteraction NodeKind = "interaction"
	NodeMemory      NodeKind = "memory"
	NodeSummary     NodeKind = "summary"
	NodeEmbedding   NodeKind = "embedding"
	NodeResponse    NodeKind = "response"
)

// GraphMemoryType classifies a MemoryNode's provenance. Distinct
// from Memory.Tier in the flat model — the two models coexist deliberately
//.
type GraphMemoryType string

const (
	MemoryRaw         GraphMemoryType = "raw"
	MemoryConsolidated GraphMemoryType = "consolidated"
	MemoryCritical    GraphMemoryType = "critical"
)

// MemoryNodeStatus is the lifecycle status of a MemoryNode. Valid
// transitions: active -> pending_deletion -> deleted; archived is a
// terminal sibling of active (, "Lifecycles").
type MemoryNodeStatus string

const (
	MemoryActive          MemoryNodeStatus = "active"
	MemoryArchived        MemoryNodeStatus = "archived"
	MemoryPendingDeletion MemoryNodeStatus = "pending_deletion"
	MemoryDeleted         MemoryNodeStatus = "deleted"
)

// IsValidMemoryNodeTransition reports whether a MemoryNode may move from
// `from` to `to`'s lifecycle: active -> pending_deletion ->
// deleted, with archived a terminal sibling of active reachable only from
// active.
func IsValidMemoryNodeTransition(from, to MemoryNodeStatus) bool {
	switch from {
	case MemoryActive:
		return to == MemoryPendingDeletion || to == MemoryArchived
	case MemoryPendingDeletion:
		return to == MemoryDeleted
	case MemoryArchived, MemoryDeleted:
		return false
	default:
		return false
	}
}

// GraphCriticality classifies a MemoryNode's sensitivity.
type GraphCriticality string

const (
	CriticalityNormal         GraphCriticality = "normal"
	CriticalitySafetyCritical GraphCriticality = "safety_critical"
	CriticalityProtected      GraphCriticality = "protected"
)

// InteractionNode is the provenance root for one agent interaction
//.
type InteractionNode struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Query           string         `json:"query"`
	Response        string         `json:"response"`
	Timestamp       time.Time      `json:"timestamp"`
	AgentID         string         `json:"agent_id"`
	TransactionCost float64        `json:"transaction_cost"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// MemoryNode is a versioned, shard-partitioned node representing a memory
// in the provenance graph. Partitioned by HASH(shard_id) mod
// 16; composite primary key (id, shard_id).
type MemoryNode struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	MemoryType GraphMemoryType  `json:"memory_type"`
	Status     MemoryNodeStatus `json:"status"`

	ShardID int `json:"shard_id"` // 0..15
	SliceID int `json:"slice_id"`

	CreatedAt       time.Time        `json:"created_at"`
	CreatedByUserID string           `json:"created_by_user_id"`
	TokenCount      int              `json:"token_count"`
	Criticality     GraphCriticality `json:"criticality"`
	Metadata        map[string]any   `json:"metadata,omitempty"`

	DeletionScheduledAt *time.Time `json:"deletion_scheduled_at,omitempty"`
}

// SummaryNode is a consolidation of one or more source memories.
type SummaryNode struct {
	ID                string         `json:"id"`
	Content           string         `json:"content"`
	SourceMemoryCount int            `json:"source_memory_count"`
	CreatedAt         time.Time      `json:"created_at"`
	Method            string         `json:"method"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// EmbeddingNode points at an externally stored vector.
type EmbeddingNode struct {
	ID            string         `json:"id"`
	VectorRef     string         `json:"vector_ref"` // opaque external pointer
	ModelVersion  string         `json:"model_version"`
	Dimensions    int            `json:"dimensions"`
	CreatedAt     time.Time      `json:"created_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Statement is one sentence/clause of a response, addressable by index for
// per-statement attribution.
type Statement struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// ResponseNode decomposes an InteractionNode's response into statements so
// individual memories can be attributed to individual statements.
type ResponseNode struct {
	ID            string      `json:"id"`
	InteractionID string      `json:"interaction_id"`
	Statements    []Statement `json:"statements"`
	CreatedAt     time.Time   `json:"created_at"`
}
