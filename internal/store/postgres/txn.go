package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

type txn struct {
	tx                *sql.Tx
	pgvectorAvailable bool
}

func (t *txn) Commit() error { return t.tx.Commit() }

func (t *txn) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Flush is a no-op: every statement already executes inside this
// transaction's connection, so there is nothing server-side left to
// materialize before a later statement in the same Txn can see it.
func (t *txn) Flush(ctx context.Context) error { return nil }

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (t *txn) InsertMemory(ctx context.Context, m *types.Memory) error {
	metadata, err := marshalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, tokens = excluded.tokens,
			agent_id = excluded.agent_id, tier = excluded.tier, criticality = excluded.criticality, metadata = excluded.metadata`,
		m.ID, m.Content, pq.Array(m.Embedding), m.Tokens, m.AgentID, m.Tier, m.Criticality, metadata,
		m.RetrievalCount, m.CreatedAt, m.LastAccessed, m.DeletedAt)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (t *txn) SoftDeleteMemory(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE memories SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`, time.Now().UTC(), id)
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
	_, err = t.tx.ExecContext(ctx, `UPDATE memories SET content = $1, tier = $2, criticality = $3, metadata = $4 WHERE id = $5`,
		m.Content, m.Tier, m.Criticality, metadata, m.ID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

func (t *txn) InsertTransaction(ctx context.Context, tr *types.Transaction) error {
	var responseText any
	if tr.ResponseText != nil {
		responseText = *tr.ResponseText
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tr.ID, tr.QueryText, pq.Array(tr.QueryEmbedding), responseText, pq.Array(tr.ResponseEmbedding), pq.Array(tr.RetrievedMemoryIDs),
		tr.AgentID, tr.InputTokens, tr.OutputTokens, tr.Model, tr.Status, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *txn) CompleteTransaction(ctx context.Context, tr *types.Transaction) error {
	var responseText any
	if tr.ResponseText != nil {
		responseText = *tr.ResponseText
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET response_text = $1, response_embedding = $2, input_tokens = $3, output_tokens = $4, status = $5
		WHERE id = $6`,
		responseText, pq.Array(tr.ResponseEmbedding), tr.InputTokens, tr.OutputTokens, tr.Status, tr.ID)
	if err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	return nil
}

func (t *txn) InsertAttributionScore(ctx context.Context, s *types.AttributionScore) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attribution_scores (id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.MemoryID, s.TransactionID, s.Score, s.RawScore, s.Method, s.Confidence, s.ComputeTimeMS)
	if err != nil {
		return fmt.Errorf("insert attribution score: %w", err)
	}
	return nil
}

// UpsertMemoryProfileWelford performs the atomic Welford upsert in a
// single statement, using the excluded.mean_attribution overload to carry
// the new sample x through the VALUES clause so mean'/m2'/trend' are
// computed purely from the row's current values plus x (see
// internal/store/sqlite/txn.go for the arithmetic this mirrors).
func (t *txn) UpsertMemoryProfileWelford(ctx context.Context, memoryID string, x float64, at time.Time) (float64, error) {
	var oldMean float64
	err := t.tx.QueryRowContext(ctx, `SELECT mean_attribution FROM memory_profiles WHERE memory_id = $1`, memoryID).Scan(&oldMean)
	if err == sql.ErrNoRows {
		oldMean = 0
	} else if err != nil {
		return 0, fmt.Errorf("read prior mean: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memory_profiles (memory_id, mean_attribution, m2, retrieval_count, total_attribution, trend, updated_at)
		VALUES ($1, $2, 0, 1, $2, 'stable', $3)
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
		memoryID, x, at)
	if err != nil {
		return 0, fmt.Errorf("upsert memory profile: %w", err)
	}

	return oldMean, nil
}

func (t *txn) BumpMemoryRetrieval(ctx context.Context, memoryID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE memories SET retrieval_count = retrieval_count + 1, last_accessed = $1 WHERE id = $2`, at, memoryID)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.UserID, n.Query, n.Response, n.Timestamp, n.AgentID, n.TransactionCost, metadata)
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
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO attribution_edges (created_at, source_id, target_id, score, score_type, version, is_current, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.CreatedAt, e.SourceID, e.TargetID, e.Score, e.ScoreType, e.Version, e.IsCurrent, metadata).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert attribution edge: %w", err)
	}
	return nil
}

func (t *txn) InsertMemoryNode(ctx context.Context, n *types.MemoryNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memory_nodes (id, content, memory_type, status, shard_id, slice_id, created_at, created_by_user_id, token_count, criticality, metadata, deletion_scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.Content, n.MemoryType, n.Status, n.ShardID, n.SliceID, n.CreatedAt,
		n.CreatedByUserID, n.TokenCount, n.Criticality, metadata, n.DeletionScheduledAt)
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
	err = t.tx.QueryRowContext(ctx, `INSERT INTO creation_edges (source_id, target_id, created_at, metadata) VALUES ($1, $2, $3, $4) RETURNING id`,
		e.SourceID, e.TargetID, e.CreatedAt, metadata).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert creation edge: %w", err)
	}
	return nil
}

// InsertEmbeddingNode dual-writes into the pgvector vector column when the
// extension is available, falling back to the vector_ref-only row on
// failure. EmbeddingNode carries only a VectorRef (the provenance graph
// records that an embedding exists, not the raw floats), so the
// dual-write only fires when the node's metadata carries the resolved
// vector under the "vector" key.
func (t *txn) InsertEmbeddingNode(ctx context.Context, n *types.EmbeddingNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO embedding_nodes (id, vector_ref, model_version, dimensions, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.VectorRef, n.ModelVersion, n.Dimensions, n.CreatedAt, metadata)
	if err != nil {
		return fmt.Errorf("insert embedding node: %w", err)
	}

	if t.pgvectorAvailable {
		if raw, ok := n.Metadata["vector"].([]float64); ok && len(raw) > 0 {
			vec := vectorOf(raw)
			if _, err := t.tx.ExecContext(ctx, `UPDATE embedding_nodes SET vector = $1 WHERE id = $2`, vec, n.ID); err != nil {
				slog.Warn("postgres: failed to dual-write pgvector column, vector search degraded for this node", "id", n.ID, "error", err)
			}
		}
	}

	return nil
}

func (t *txn) InsertDerivationEdge(ctx context.Context, e *types.DerivationEdge) error {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO derivation_edges (source_id, source_type, target_id, target_type, derivation_type, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.Source.ID, string(e.Source.Kind), e.Target.ID, string(e.Target.Kind), e.DerivationType, e.CreatedAt, metadata).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert derivation edge: %w", err)
	}
	return nil
}

func (t *txn) InsertSummaryNode(ctx context.Context, n *types.SummaryNode) error {
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO summary_nodes (id, content, source_memory_count, created_at, method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Content, n.SourceMemoryCount, n.CreatedAt, n.Method, metadata)
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
		VALUES ($1, $2, $3, $4)`,
		n.ID, n.InteractionID, statements, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert response node: %w", err)
	}
	return nil
}

func (t *txn) InsertStatementAttributionEdge(ctx context.Context, e *types.StatementAttributionEdge) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO statement_attribution_edges (memory_id, response_id, statement_index, score, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.MemoryID, e.ResponseID, e.StatementIndex, e.Score, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert statement attribution edge: %w", err)
	}
	return nil
}

func (t *txn) CurrentAttributionEdge(ctx context.Context, sourceID, targetID string) (*types.AttributionEdge, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, created_at, source_id, target_id, score, score_type, version, is_current, metadata
		FROM attribution_edges WHERE source_id = $1 AND target_id = $2 AND is_current`, sourceID, targetID)

	var e types.AttributionEdge
	var metadataRaw []byte
	err := row.Scan(&e.ID, &e.CreatedAt, &e.SourceID, &e.TargetID, &e.Score, &e.ScoreType, &e.Version, &e.IsCurrent, &metadataRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan current attribution edge: %w", err)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &e, nil
}

func (t *txn) FlipAttributionEdgeNotCurrent(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE attribution_edges SET is_current = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("flip attribution edge: %w", err)
	}
	return nil
}

func (t *txn) NextSliceID(ctx context.Context, userID string) (int, error) {
	var max sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `SELECT MAX(slice_id) FROM memory_nodes WHERE created_by_user_id = $1`, userID).Scan(&max)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		cert.ID, cert.UserID, cert.RequestType, cert.FootprintSnapshot, cert.NodesDeleted, cert.EdgesAffected,
		cert.DeletionTimestamp, cert.GracePeriodEnd, cert.HardDeletedAt, cert.Verified, cert.VerifiedAt, cert.CertificateHash, metadata)
	if err != nil {
		return fmt.Errorf("insert compliance certificate: %w", err)
	}
	return nil
}

var _ store.Txn = (*txn)(nil)
