// Package store defines the typed, transactional persistence interface
// shared by every backend under internal/store/*. Two concrete
// implementations satisfy it: internal/store/postgres (the production
// adapter) and internal/store/sqlite (the pure-Go test harness).
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cortexai/cortex-engine/pkg/types"
)

// ListMemoriesOptions filters and paginates Memory reads. It has no sort
// option; Normalize only clamps Offset and Limit.
type ListMemoriesOptions struct {
	AgentID string
	Tier    types.MemoryTier
	Offset  int
	Limit   int
}

var listMemoriesSortWhitelist = map[string]bool{
	"created_at": true,
	"id":         true,
}

// Normalize clamps Offset/Limit to sane defaults and caps.
func (o *ListMemoriesOptions) Normalize() {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// ListTransactionsOptions filters and paginates Transaction reads.
type ListTransactionsOptions struct {
	AgentID string
	Status  types.TransactionStatus
	Offset  int
	Limit   int
}

func (o *ListTransactionsOptions) Normalize() {
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// PaginatedResult is a generic page of items plus the total row count.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Offset   int
	Limit    int
	HasMore  bool
}

// Store is the read surface plus transaction/raw-query escape hatches. All
// mutations go through a Txn obtained from Begin, so the caller always
// controls the commit boundary.
type Store interface {
	Begin(ctx context.Context) (Txn, error)

	// RawQuery is the narrow escape hatch for direct SQL reads.
	// internal/footprint does not use it; it walks the graph through the
	// typed edge-read methods below.
	RawQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	Close() error

	GetMemory(ctx context.Context, id string) (*types.Memory, error)
	ListMemories(ctx context.Context, opts ListMemoriesOptions) (PaginatedResult[types.Memory], error)

	// GetMemoriesByIDs fetches memories ordered by id ascending, a
	// correctness requirement for reconstructing transaction snapshots,
	// not a performance hint. When snapshot is false, soft-deleted
	// memories (deleted_at not null) are excluded; when true, they are
	// included.
	GetMemoriesByIDs(ctx context.Context, ids []string, snapshot bool) ([]types.Memory, error)

	GetTransaction(ctx context.Context, id string) (*types.Transaction, error)
	ListTransactions(ctx context.Context, opts ListTransactionsOptions) (PaginatedResult[types.Transaction], error)

	GetAttributionScores(ctx context.Context, transactionID string) ([]types.AttributionScore, error)

	// GetAttributionScoresByMemory lists every score ever recorded against
	// memoryID, newest first, for the /api/v1/attribution/memory/{id}
	// route.
	GetAttributionScoresByMemory(ctx context.Context, memoryID string) ([]types.AttributionScore, error)

	GetMemoryProfile(ctx context.Context, memoryID string) (*types.MemoryProfile, error)

	GetAgentCostConfig(ctx context.Context, agentID string) (*types.AgentCostConfig, error)

	// Provenance reads used by internal/footprint.
	InteractionIDsByUser(ctx context.Context, userID string) ([]string, error)
	CreationTargets(ctx context.Context, interactionIDs []string) ([]string, error)
	DerivationTargets(ctx context.Context, refs []types.NodeRef) ([]types.NodeRef, error)
	NodeKind(ctx context.Context, id string) (types.DerivableKind, bool, error)
	CurrentPositiveAttributionInteractions(ctx context.Context, memoryIDs []string) ([]string, error)

	SaveCertificate(ctx context.Context, cert *types.ComplianceCertificate) error
	GetCertificate(ctx context.Context, id string) (*types.ComplianceCertificate, error)

	ListHealthSnapshots(ctx context.Context, agentID string, limit int) ([]types.HealthSnapshot, error)
	ListContradictions(ctx context.Context, resolved *bool, limit int) ([]types.Contradiction, error)
}

// Txn is a single unit of work. Commit/Rollback are idempotent-safe to call
// in a defer after an explicit Commit (the second call is a no-op), so
// handlers can always defer txn.Rollback() right after Begin.
type Txn interface {
	Commit() error
	Rollback() error

	// Flush materializes pending inserts and server-assigned defaults
	// (mainly created_at timestamps here, since ids are client-generated
	// UUIDv7s) so later statements in the same Txn can reference them
	//.
	Flush(ctx context.Context) error

	InsertMemory(ctx context.Context, m *types.Memory) error
	SoftDeleteMemory(ctx context.Context, id string) error
	UpdateMemory(ctx context.Context, m *types.Memory) error

	InsertTransaction(ctx context.Context, t *types.Transaction) error
	CompleteTransaction(ctx context.Context, t *types.Transaction) error

	InsertAttributionScore(ctx context.Context, s *types.AttributionScore) error

	// UpsertMemoryProfileWelford performs the atomic Welford upsert from
	// step 6 in a single statement against the row's current
	// values, returning the pre-update mean for trend classification.
	UpsertMemoryProfileWelford(ctx context.Context, memoryID string, x float64, at time.Time) (oldMean float64, err error)

	BumpMemoryRetrieval(ctx context.Context, memoryID string, at time.Time) error

	InsertInteractionNode(ctx context.Context, n *types.InteractionNode) error
	InsertAttributionEdge(ctx context.Context, e *types.AttributionEdge) error

	InsertMemoryNode(ctx context.Context, n *types.MemoryNode) error
	InsertCreationEdge(ctx context.Context, e *types.CreationEdge) error
	InsertEmbeddingNode(ctx context.Context, n *types.EmbeddingNode) error
	InsertDerivationEdge(ctx context.Context, e *types.DerivationEdge) error
	InsertSummaryNode(ctx context.Context, n *types.SummaryNode) error
	InsertResponseNode(ctx context.Context, n *types.ResponseNode) error
	InsertStatementAttributionEdge(ctx context.Context, e *types.StatementAttributionEdge) error

	// CurrentAttributionEdge returns the row with is_current = true for
	// (sourceID, targetID), or nil if none exists yet.
	CurrentAttributionEdge(ctx context.Context, sourceID, targetID string) (*types.AttributionEdge, error)
	FlipAttributionEdgeNotCurrent(ctx context.Context, id int64) error

	// NextSliceID returns max(slice_id where created_by_user_id = userID) + 1,
	// or 0 if the user has no prior MemoryNode.
	NextSliceID(ctx context.Context, userID string) (int, error)

	InsertComplianceCertificate(ctx context.Context, cert *types.ComplianceCertificate) error
}
