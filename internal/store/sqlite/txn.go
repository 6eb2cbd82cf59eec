package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

type txn struct {
	tx *sql.Tx
}

func (t *txn) Commit() error   { return t.tx.Commit() }
func (t *txn) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Flush materializes pending inserts. Each statement executes immediately
// inside the open transaction and is visible to later statements in it,
// so there is nothing to buffer; this
// is a no-op that exists to satisfy the store.Txn contract the same way it
// would need real buffering against a backend with deferred default
// generation.
func (t *txn) Flush(ctx context.Context) error { return nil }

func (t *txn) InsertMemory(ctx context.Context, m *types.Memory) error {
	embedding, err := marshalJSON(m.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, tokens = excluded.tokens,
			agent_id = excluded.agent_id, tier = excluded.tier, criticality = excluded.criticality, metadata = excluded.metadata`,
		m.ID, m.Content, string(embedding), m.Tokens, m.AgentID, m.Tier, m.Criticality, string(metadata),
		m.RetrievalCount, m.CreatedAt.Format(timeLayout), nullableTimeString(m.LastAccessed), nullableTimeString(m.DeletedAt))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (t *txn) SoftDeleteMemory(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE memories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("soft delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return cortexerr.NotFoundf("memory %s not found", id)
	}
	return nil
}

func (t *txn) UpdateMemory(ctx context.Context, m *types.Memory) error {
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE memories SET content = ?, tier = ?, criticality = ?, metadata = ? WHERE id = ?`,
		m.Content, m.Tier, m.Criticality, string(metadata), m.ID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

func (t *txn) InsertTransaction(ctx context.Context, tr *types.Transaction) error {
	queryEmbedding, err := marshalJSON(tr.QueryEmbedding)
	if err != nil {
		return fmt.Errorf("marshal query embedding: %w", err)
	}
	responseEmbedding, err := marshalJSON(tr.ResponseEmbedding)
	if err != nil {
		return fmt.Errorf("marshal response embedding: %w", err)
	}
	retrievedIDs, err := marshalJSON(tr.RetrievedMemoryIDs)
	if err != nil {
		return fmt.Errorf("marshal retrieved memory ids: %w", err)
	}

	var responseText any
	if tr.ResponseText != nil {
		responseText = *tr.ResponseText
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.QueryText, string(queryEmbedding), responseText, string(responseEmbedding), string(retrievedIDs),
		tr.AgentID, tr.InputTokens, tr.OutputTokens, tr.Model, tr.Status, tr.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *txn) CompleteTransaction(ctx context.Context, tr *types.Transaction) error {
	responseEmbedding, err := marshalJSON(tr.ResponseEmbedding)
	if err != nil {
		return fmt.Errorf("marshal response embedding: %w", err)
	}
	var responseText any
	if tr.ResponseText != nil {
		responseText = *tr.ResponseText
	}
	_, err = t.tx.ExecContext(ctx, `
		UPDATE transactions SET response_text = ?, response_embedding = ?, input_tokens = ?, output_tokens = ?, status = ?
		WHERE id = ?`,
		responseText, string(responseEmbedding), tr.InputTokens, tr.OutputTokens, tr.Status, tr.ID)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	return nil
}

func (t *txn) InsertAttributionScore(ctx context.Context, s *types.AttributionScore) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attribution_scores (id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.MemoryID, s.TransactionID, s.Score, s.RawScore, s.Method, s.Confidence, s.ComputeTimeMS)
	if err != nil {
		return fmt.Errorf("insert attribution score: %w", err)
	}
	return nil
}

// UpsertMemoryProfileWelford performs the atomic Welford upsert. The
// UPDATE branch computes mean'/m2'/trend' entirely from the existing
// row's columns (memory_profiles.*) and the new sample
// (excluded.mean_attribution, which carries x through the VALUES clause),
// never from values held in Go, so the new value is computed inside a
// single statement from the row's prior values for any writer serialized
// against this connection.
func (t *txn) UpsertMemoryProfileWelford(ctx context.Context, memoryID string, x float64, at time.Time) (float64, error) {
	var oldMean float64
	err := t.tx.QueryRowContext(ctx, `SELECT mean_attribution FROM memory_profiles WHERE memory_id = ?`, memoryID).Scan(&oldMean)
	if err == sql.ErrNoRows {
		oldMean = 0
	} else if err != nil {
		return 0, fmt.Errorf("read prior mean: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memory_profiles (memory_id, mean_attribution, m2, retrieval_count, total_attribution, trend, updated_at)
		VALUES (?, ?, 0, 1, ?, 'stable', ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			m2 = memory_profiles.m2 + (excluded.mean_attribution - memory_profiles.mean_attribution) *
				(excluded.mean_attribution - (memory_profiles.mean_attribution + (excluded.mean_attribution - memory_profiles.mean_attribution) / (memory_profiles.retrieval_count + 1))),
			mean_attribution = memory_profiles.mean_attribution + (excluded.mean_attribution - memory_profiles.mean_attribution) / (memory_profiles.retrieval_count + 1),
			retrieval_count = memory_profiles.retrieval_count + 1,
			total_attribution = memory_profiles.total_attribution + excluded.mean_attribution,
			trend = CASE
				WHEN excluded.mean_attribution > 1.1 * memory_profiles.mean_attribution THEN 'up'
				WHEN excluded.mean_attribution < 0.9 * memory_profiles.mean_attribution THEN 'down'
				ELSE 'stable'
			END,
			updated_at = excluded.updated_at`,
		memoryID, x, x, at.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("upsert memory profile: %w", err)
	}

	return oldMean, nil
}

func (t *txn) BumpMemoryRetrieval(ctx context.Context, memoryID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE memories SET retrieval_count = retrieval_count + 1, last_accessed = ? WHERE id = ?`, at.Format(timeLayout), memoryID)
	if err != nil {
		return fmt.Errorf("bump memory retrieval: %w", err)
	}
	return nil
}

func (t *txn) InsertInteractionNode(ctx context.Context, n *types.InteractionNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO interaction_nodes (id, user_id, query, response, timestamp, agent_id, transaction_cost, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Query, n.Response, n.Timestamp.Format(timeLayout), n.AgentID, n.TransactionCost, string(metadata))
	if err != nil {
		return fmt.Errorf("insert interaction node: %w", err)
	}
	return nil
}

func (t *txn) InsertAttributionEdge(ctx context.Context, e *types.AttributionEdge) error {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO attribution_edges (created_at, source_id, target_id, score, score_type, version, is_current, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CreatedAt.Format(timeLayout), e.SourceID, e.TargetID, e.Score, e.ScoreType, e.Version, e.IsCurrent, string(metadata))
	if err != nil {
		return fmt.Errorf("insert attribution edge: %w", err)
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (t *txn) InsertMemoryNode(ctx context.Context, n *types.MemoryNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memory_nodes (id, content, memory_type, status, shard_id, slice_id, created_at, created_by_user_id, token_count, criticality, metadata, deletion_scheduled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Content, n.MemoryType, n.Status, n.ShardID, n.SliceID, n.CreatedAt.Format(timeLayout),
		n.CreatedByUserID, n.TokenCount, n.Criticality, string(metadata), nullableTimeString(n.DeletionScheduledAt))
	if err != nil {
		return fmt.Errorf("insert memory node: %w", err)
	}
	return nil
}

func (t *txn) InsertCreationEdge(ctx context.Context, e *types.CreationEdge) error {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO creation_edges (source_id, target_id, created_at, metadata) VALUES (?, ?, ?, ?)`,
		e.SourceID, e.TargetID, e.CreatedAt.Format(timeLayout), string(metadata))
	if err != nil {
		return fmt.Errorf("insert creation edge: %w", err)
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (t *txn) InsertEmbeddingNode(ctx context.Context, n *types.EmbeddingNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO embedding_nodes (id, vector_ref, model_version, dimensions, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.VectorRef, n.ModelVersion, n.Dimensions, n.CreatedAt.Format(timeLayout), string(metadata))
	if err != nil {
		return fmt.Errorf("insert embedding node: %w", err)
	}
	return nil
}

func (t *txn) InsertDerivationEdge(ctx context.Context, e *types.DerivationEdge) error {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO derivation_edges (source_id, source_type, target_id, target_type, derivation_type, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Source.ID, string(e.Source.Kind), e.Target.ID, string(e.Target.Kind), e.DerivationType, e.CreatedAt.Format(timeLayout), string(metadata))
	if err != nil {
		return fmt.Errorf("insert derivation edge: %w", err)
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (t *txn) InsertSummaryNode(ctx context.Context, n *types.SummaryNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO summary_nodes (id, content, source_memory_count, created_at, method, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Content, n.SourceMemoryCount, n.CreatedAt.Format(timeLayout), n.Method, string(metadata))
	if err != nil {
		return fmt.Errorf("insert summary node: %w", err)
	}
	return nil
}

func (t *txn) InsertResponseNode(ctx context.Context, n *types.ResponseNode) error {
	statements, err := marshalJSON(n.Statements)
	if err != nil {
		return fmt.Errorf("marshal statements: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO response_nodes (id, interaction_id, statements, created_at)
		VALUES (?, ?, ?, ?)`,
		n.ID, n.InteractionID, string(statements), n.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert response node: %w", err)
	}
	return nil
}

func (t *txn) InsertStatementAttributionEdge(ctx context.Context, e *types.StatementAttributionEdge) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO statement_attribution_edges (memory_id, response_id, statement_index, score, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.MemoryID, e.ResponseID, e.StatementIndex, e.Score, e.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert statement attribution edge: %w", err)
	}
	id, _ := res.LastInsertId()
	e.ID = id
	return nil
}

func (t *txn) CurrentAttributionEdge(ctx context.Context, sourceID, targetID string) (*types.AttributionEdge, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, created_at, source_id, target_id, score, score_type, version, is_current, metadata
		FROM attribution_edges WHERE source_id = ? AND target_id = ? AND is_current = 1`, sourceID, targetID)

	var e types.AttributionEdge
	var createdAt string
	var metadata sql.NullString
	var isCurrent int
	err := row.Scan(&e.ID, &createdAt, &e.SourceID, &e.TargetID, &e.Score, &e.ScoreType, &e.Version, &isCurrent, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan current attribution edge: %w", err)
	}
	e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	e.IsCurrent = isCurrent != 0
	return &e, nil
}

func (t *txn) FlipAttributionEdgeNotCurrent(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE attribution_edges SET is_current = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("flip attribution edge: %w", err)
	}
	return nil
}

func (t *txn) NextSliceID(ctx context.Context, userID string) (int, error) {
	var max sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `SELECT MAX(slice_id) FROM memory_nodes WHERE created_by_user_id = ?`, userID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("read max slice id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (t *txn) InsertComplianceCertificate(ctx context.Context, cert *types.ComplianceCertificate) error {
	metadata, err := marshalJSON(cert.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO compliance_certificates (id, user_id, request_type, footprint_snapshot, nodes_deleted, edges_affected, deletion_timestamp, grace_period_end, hard_deleted_at, verified, verified_at, certificate_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cert.ID, cert.UserID, cert.RequestType, cert.FootprintSnapshot, cert.NodesDeleted, cert.EdgesAffected,
		cert.DeletionTimestamp.Format(timeLayout), cert.GracePeriodEnd.Format(timeLayout),
		nullableTimeString(cert.HardDeletedAt), cert.Verified, nullableTimeString(cert.VerifiedAt), cert.CertificateHash, string(metadata))
	if err != nil {
		return fmt.Errorf("insert compliance certificate: %w", err)
	}
	return nil
}

var _ store.Txn = (*txn)(nil)
