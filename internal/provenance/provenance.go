// Package provenance implements the write-path recorders for the
// append-only provenance DAG. Each recorder takes an externally supplied
// store.Txn so the caller owns the commit boundary.
package provenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if crypto/rand is broken; fall back to v4 rather
		// than panic in a write path.
		return uuid.NewString()
	}
	return id.String()
}

// RecordTransaction records an InteractionNode and zips memoryIDs against
// scores positionally into AttributionEdges.
func RecordTransaction(
	ctx context.Context,
	txn store.Txn,
	userID, query, response, agentID string,
	transactionCost float64,
	memoryIDs []string,
	scores []float64,
	scoreType types.ScoreType,
	timestamp *time.Time,
	metadata map[string]any,
) (*types.InteractionNode, error) {
	if len(memoryIDs) != len(scores) {
		return nil, cortexerr.Validationf("memoryIDs and scores must have equal length, got %d and %d", len(memoryIDs), len(scores))
	}

	ts := time.Now().UTC()
	if timestamp != nil {
		ts = *timestamp
	}

	node := &types.InteractionNode{
		ID:              newID(),
		UserID:          userID,
		Query:           query,
		Response:        response,
		Timestamp:       ts,
		AgentID:         agentID,
		TransactionCost: transactionCost,
		Metadata:        metadata,
	}

	if err := txn.InsertInteractionNode(ctx, node); err != nil {
		return nil, fmt.Errorf("insert interaction node: %w", err)
	}
	if err := txn.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	if scoreType == "" {
		scoreType = types.ScoreEAS
	}

	for i, memoryID := range memoryIDs {
		edge := &types.AttributionEdge{
			CreatedAt: ts,
			SourceID:  memoryID,
			TargetID:  node.ID,
			Score:     scores[i],
			ScoreType: scoreType,
			Version:   1,
			IsCurrent: true,
		}
		if err := txn.InsertAttributionEdge(ctx, edge); err != nil {
			return nil, fmt.Errorf("insert attribution edge for memory %s: %w", memoryID, err)
		}
	}

	return node, nil
}

// RecordMemoryCreation inserts a MemoryNode and its mandatory outgoing
// embedding DerivationEdge, plus the incoming CreationEdge from
// interactionID.
func RecordMemoryCreation(
	ctx context.Context,
	txn store.Txn,
	interactionID, content, userID string,
	memoryType types.GraphMemoryType,
	vectorRef, embeddingModel string,
	embeddingDim int,
	tokenCount int,
	criticality types.GraphCriticality,
	metadata map[string]any,
) (*types.MemoryNode, *types.EmbeddingNode, error) {
	if memoryType == "" {
		memoryType = types.MemoryRaw
	}
	if criticality == "" {
		criticality = types.CriticalityNormal
	}

	sliceID, err := txn.NextSliceID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("next slice id: %w", err)
	}

	now := time.Now().UTC()
	memNode := &types.MemoryNode{
		ID:              newID(),
		Content:         content,
		MemoryType:      memoryType,
		Status:          types.MemoryActive,
		ShardID:         ShardFor(userID),
		SliceID:         sliceID,
		CreatedAt:       now,
		CreatedByUserID: userID,
		TokenCount:      tokenCount,
		Criticality:     criticality,
		Metadata:        metadata,
	}
	if err := txn.InsertMemoryNode(ctx, memNode); err != nil {
		return nil, nil, fmt.Errorf("insert memory node: %w", err)
	}
	if err := txn.Flush(ctx); err != nil {
		return nil, nil, fmt.Errorf("flush: %w", err)
	}

	creation := &types.CreationEdge{
		SourceID:  interactionID,
		TargetID:  memNode.ID,
		CreatedAt: now,
	}
	if err := txn.InsertCreationEdge(ctx, creation); err != nil {
		return nil, nil, fmt.Errorf("insert creation edge: %w", err)
	}

	embNode := &types.EmbeddingNode{
		ID:           newID(),
		VectorRef:    vectorRef,
		ModelVersion: embeddingModel,
		Dimensions:   embeddingDim,
		CreatedAt:    now,
	}
	if err := txn.InsertEmbeddingNode(ctx, embNode); err != nil {
		return nil, nil, fmt.Errorf("insert embedding node: %w", err)
	}
	if err := txn.Flush(ctx); err != nil {
		return nil, nil, fmt.Errorf("flush: %w", err)
	}

	derivation := &types.DerivationEdge{
		Source:         types.NodeRef{Kind: types.DerivableMemory, ID: memNode.ID},
		Target:         types.NodeRef{Kind: types.DerivableEmbedding, ID: embNode.ID},
		DerivationType: types.DerivationEmbedding,
		CreatedAt:      now,
	}
	if err := txn.InsertDerivationEdge(ctx, derivation); err != nil {
		return nil, nil, fmt.Errorf("insert derivation edge: %w", err)
	}

	return memNode, embNode, nil
}

// RecordConsolidation inserts a SummaryNode and one consolidation
// DerivationEdge per source memory. It deliberately does not synthesize a
// CreationEdge from any interaction to the summary (, Open
// Question 2) — summaries are reached only via their source memories.
func RecordConsolidation(
	ctx context.Context,
	txn store.Txn,
	sourceMemoryIDs []string,
	summaryContent string,
	method string,
	metadata map[string]any,
) (*types.SummaryNode, error) {
	if method == "" {
		method = "llm_consolidation"
	}

	now := time.Now().UTC()
	summary := &types.SummaryNode{
		ID:                newID(),
		Content:           summaryContent,
		SourceMemoryCount: len(sourceMemoryIDs),
		CreatedAt:         now,
		Method:            method,
		Metadata:          metadata,
	}
	if err := txn.InsertSummaryNode(ctx, summary); err != nil {
		return nil, fmt.Errorf("insert summary node: %w", err)
	}
	if err := txn.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	for _, memoryID := range sourceMemoryIDs {
		edge := &types.DerivationEdge{
			Source:         types.NodeRef{Kind: types.DerivableMemory, ID: memoryID},
			Target:         types.NodeRef{Kind: types.DerivableSummary, ID: summary.ID},
			DerivationType: types.DerivationConsolidation,
			CreatedAt:      now,
		}
		if err := txn.InsertDerivationEdge(ctx, edge); err != nil {
			return nil, fmt.Errorf("insert derivation edge for memory %s: %w", memoryID, err)
		}
	}

	return summary, nil
}

// MemoryStatementScore is one entry of a transaction's memory_scores list.
type MemoryStatementScore struct {
	MemoryID       string
	StatementIndex int
	Score          float64
}

// RecordContextCite inserts a ResponseNode with its statement list verbatim
// plus one StatementAttributionEdge per memoryScores entry.
func RecordContextCite(
	ctx context.Context,
	txn store.Txn,
	interactionID string,
	statements []types.Statement,
	memoryScores []MemoryStatementScore,
) (*types.ResponseNode, error) {
	now := time.Now().UTC()
	response := &types.ResponseNode{
		ID:            newID(),
		InteractionID: interactionID,
		Statements:    statements,
		CreatedAt:     now,
	}
	if err := txn.InsertResponseNode(ctx, response); err != nil {
		return nil, fmt.Errorf("insert response node: %w", err)
	}
	if err := txn.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	for _, ms := range memoryScores {
		edge := &types.StatementAttributionEdge{
			MemoryID:       ms.MemoryID,
			ResponseID:     response.ID,
			StatementIndex: ms.StatementIndex,
			Score:          ms.Score,
			CreatedAt:      now,
		}
		if err := txn.InsertStatementAttributionEdge(ctx, edge); err != nil {
			return nil, fmt.Errorf("insert statement attribution edge: %w", err)
		}
	}

	return response, nil
}

// UpdateAttribution runs the versioning protocol from: flip the
// current row's is_current to false (if any), then insert a new row with
// version = old+1, is_current = true. Both steps run inside the caller's
// txn so they commit atomically — no reader ever observes zero or two
// is_current rows for (sourceID, targetID).
func UpdateAttribution(
	ctx context.Context,
	txn store.Txn,
	sourceID, targetID string,
	newScore float64,
	newScoreType types.ScoreType,
	metadata map[string]any,
) (*types.AttributionEdge, error) {
	current, err := txn.CurrentAttributionEdge(ctx, sourceID, targetID)
	if err != nil {
		return nil, fmt.Errorf("lookup current attribution edge: %w", err)
	}

	version := 1
	if current != nil {
		version = current.Version + 1
		if err := txn.FlipAttributionEdgeNotCurrent(ctx, current.ID); err != nil {
			return nil, fmt.Errorf("flip current edge: %w", err)
		}
	}

	edge := &types.AttributionEdge{
		CreatedAt: time.Now().UTC(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Score:     newScore,
		ScoreType: newScoreType,
		Version:   version,
		IsCurrent: true,
		Metadata:  metadata,
	}
	if err := txn.InsertAttributionEdge(ctx, edge); err != nil {
		return nil, fmt.Errorf("insert new attribution edge: %w", err)
	}

	return edge, nil
}
