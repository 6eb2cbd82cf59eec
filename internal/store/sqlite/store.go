// Package sqlite is the pure-Go test-harness backend, tolerating an
// adapter configuration that ignores partitioning hints entirely. It is
// a first-class backend, not a mock, built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

const timeLayout = time.RFC3339Nano

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at path and applies Schema
// idempotently, logging (not failing) on any statement that already
// exists.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer, matches modernc.org/sqlite guidance

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		slog.Warn("sqlite: could not enable foreign_keys pragma", "error", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("sqlite store initialized, ignoring any partitioning hints manifest", "path", path)

	return &Store{db: db}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RawQuery(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) Begin(ctx context.Context) (store.Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &txn{tx: tx}, nil
}

// --- read surface ---

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, cortexerr.NotFoundf("memory %s not found", id)
	}
	if err != nil {
		return nil, cortexerr.Storef("scan memory: %v", err)
	}
	return m, nil
}

func (s *Store) ListMemories(ctx context.Context, opts store.ListMemoriesOptions) (store.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := "WHERE deleted_at IS NULL"
	var args []any
	if opts.AgentID != "" {
		where += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}
	if opts.Tier != "" {
		where += " AND tier = ?"
		args = append(args, opts.Tier)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memories " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return store.PaginatedResult[types.Memory]{}, cortexerr.Storef("count memories: %v", err)
	}

	query := "SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return store.PaginatedResult[types.Memory]{}, cortexerr.Storef("list memories: %v", err)
	}
	defer rows.Close()

	var items []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return store.PaginatedResult[types.Memory]{}, cortexerr.Storef("scan memory row: %v", err)
		}
		items = append(items, *m)
	}

	return store.PaginatedResult[types.Memory]{
		Items:   items,
		Total:   total,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

// GetMemoriesByIDs fetches ordered by id ascending.
// When snapshot is false, deleted_at IS NULL is enforced; when true,
// soft-deleted memories are still returned.
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []string, snapshot bool) ([]types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories WHERE id IN (%s)`, placeholders)
	if !snapshot {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories by ids: %w", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*types.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cortexerr.Storef("scan transaction: %v", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, opts store.ListTransactionsOptions) (store.PaginatedResult[types.Transaction], error) {
	opts.Normalize()

	where := "WHERE 1=1"
	var args []any
	if opts.AgentID != "" {
		where += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}
	if opts.Status != "" {
		where += " AND status = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return store.PaginatedResult[types.Transaction]{}, cortexerr.Storef("count transactions: %v", err)
	}

	query := "SELECT id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at FROM transactions " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return store.PaginatedResult[types.Transaction]{}, cortexerr.Storef("list transactions: %v", err)
	}
	defer rows.Close()

	var items []types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return store.PaginatedResult[types.Transaction]{}, cortexerr.Storef("scan transaction row: %v", err)
		}
		items = append(items, *t)
	}

	return store.PaginatedResult[types.Transaction]{
		Items:   items,
		Total:   total,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
		HasMore: opts.Offset+len(items) < total,
	}, nil
}

func (s *Store) GetAttributionScores(ctx context.Context, transactionID string) ([]types.AttributionScore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms FROM attribution_scores WHERE transaction_id = ? ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, cortexerr.Storef("list attribution scores: %v", err)
	}
	defer rows.Close()

	var out []types.AttributionScore
	for rows.Next() {
		var a types.AttributionScore
		if err := rows.Scan(&a.ID, &a.MemoryID, &a.TransactionID, &a.Score, &a.RawScore, &a.Method, &a.Confidence, &a.ComputeTimeMS); err != nil {
			return nil, cortexerr.Storef("scan attribution score: %v", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetAttributionScoresByMemory(ctx context.Context, memoryID string) ([]types.AttributionScore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms FROM attribution_scores WHERE memory_id = ? ORDER BY id DESC`, memoryID)
	if err != nil {
		return nil, cortexerr.Storef("list attribution scores by memory: %v", err)
	}
	defer rows.Close()

	var out []types.AttributionScore
	for rows.Next() {
		var a types.AttributionScore
		if err := rows.Scan(&a.ID, &a.MemoryID, &a.TransactionID, &a.Score, &a.RawScore, &a.Method, &a.Confidence, &a.ComputeTimeMS); err != nil {
			return nil, cortexerr.Storef("scan attribution score: %v", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetMemoryProfile(ctx context.Context, memoryID string) (*types.MemoryProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT memory_id, mean_attribution, m2, retrieval_count, total_attribution, trend, updated_at FROM memory_profiles WHERE memory_id = ?`, memoryID)
	var p types.MemoryProfile
	var updatedAt string
	err := row.Scan(&p.MemoryID, &p.MeanAttribution, &p.M2, &p.RetrievalCount, &p.TotalAttribution, &p.Trend, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cortexerr.Storef("scan memory profile: %v", err)
	}
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

func (s *Store) GetAgentCostConfig(ctx context.Context, agentID string) (*types.AgentCostConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT agent_id, input_token_cost, output_token_cost FROM agent_cost_configs WHERE agent_id = ?`, agentID)
	var c types.AgentCostConfig
	err := row.Scan(&c.AgentID, &c.InputTokenCost, &c.OutputTokenCost)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cortexerr.Storef("scan agent cost config: %v", err)
	}
	return &c, nil
}

func (s *Store) InteractionIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM interaction_nodes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, cortexerr.Storef("list interactions: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cortexerr.Storef("scan interaction id: %v", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) CreationTargets(ctx context.Context, interactionIDs []string) ([]string, error) {
	if len(interactionIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(interactionIDs)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT target_id FROM creation_edges WHERE source_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, cortexerr.Storef("creation targets: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cortexerr.Storef("scan creation target: %v", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// DerivationTargets returns the set of nodes directly reachable from refs
// via one derivation_edges hop (the "step" relation in's
// recursive reachability closure).
func (s *Store) DerivationTargets(ctx context.Context, refs []types.NodeRef) ([]types.NodeRef, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	clauses := ""
	args := make([]any, 0, len(refs)*2)
	for i, ref := range refs {
		if i > 0 {
			clauses += " OR "
		}
		clauses += "(source_id = ? AND source_type = ?)"
		args = append(args, ref.ID, string(ref.Kind))
	}

	query := fmt.Sprintf(`SELECT DISTINCT target_id, target_type FROM derivation_edges WHERE %s`, clauses)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortexerr.Storef("derivation targets: %v", err)
	}
	defer rows.Close()

	var out []types.NodeRef
	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, cortexerr.Storef("scan derivation target: %v", err)
		}
		out = append(out, types.NodeRef{Kind: types.DerivableKind(kind), ID: id})
	}
	return out, nil
}

func (s *Store) NodeKind(ctx context.Context, id string) (types.DerivableKind, bool, error) {
	var kind string
	err := s.db.QueryRowContext(ctx, `SELECT 'memory' FROM memory_nodes WHERE id = ? UNION ALL SELECT 'summary' FROM summary_nodes WHERE id = ? UNION ALL SELECT 'embedding' FROM embedding_nodes WHERE id = ?`, id, id, id).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, cortexerr.Storef("lookup node kind: %v", err)
	}
	return types.DerivableKind(kind), true, nil
}

func (s *Store) CurrentPositiveAttributionInteractions(ctx context.Context, memoryIDs []string) ([]string, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(memoryIDs)
	query := fmt.Sprintf(`SELECT DISTINCT target_id FROM attribution_edges WHERE is_current = 1 AND score > 0 AND source_id IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortexerr.Storef("current positive attribution interactions: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, cortexerr.Storef("scan interaction id: %v", err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) SaveCertificate(ctx context.Context, cert *types.ComplianceCertificate) error {
	metadata, err := marshalJSON(cert.Metadata)
	if err != nil {
		return cortexerr.Storef("marshal certificate metadata: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compliance_certificates (id, user_id, request_type, footprint_snapshot, nodes_deleted, edges_affected, deletion_timestamp, grace_period_end, hard_deleted_at, verified, verified_at, certificate_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET verified = excluded.verified, verified_at = excluded.verified_at, hard_deleted_at = excluded.hard_deleted_at`,
		cert.ID, cert.UserID, cert.RequestType, cert.FootprintSnapshot, cert.NodesDeleted, cert.EdgesAffected,
		cert.DeletionTimestamp.Format(timeLayout), cert.GracePeriodEnd.Format(timeLayout),
		nullableTimeString(cert.HardDeletedAt), cert.Verified, nullableTimeString(cert.VerifiedAt), cert.CertificateHash, metadata)
	if err != nil {
		return cortexerr.Storef("save certificate: %v", err)
	}
	return nil
}

func (s *Store) GetCertificate(ctx context.Context, id string) (*types.ComplianceCertificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, request_type, footprint_snapshot, nodes_deleted, edges_affected, deletion_timestamp, grace_period_end, hard_deleted_at, verified, verified_at, certificate_hash, metadata FROM compliance_certificates WHERE id = ?`, id)
	cert, err := scanCertificate(row)
	if err == sql.ErrNoRows {
		return nil, cortexerr.NotFoundf("certificate %s not found", id)
	}
	if err != nil {
		return nil, cortexerr.Storef("scan certificate: %v", err)
	}
	return cert, nil
}

func (s *Store) ListHealthSnapshots(ctx context.Context, agentID string, limit int) ([]types.HealthSnapshot, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent_id, metric, value, captured_at FROM health_snapshots WHERE agent_id = ? ORDER BY captured_at DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, cortexerr.Storef("list health snapshots: %v", err)
	}
	defer rows.Close()

	var out []types.HealthSnapshot
	for rows.Next() {
		var h types.HealthSnapshot
		var capturedAt string
		if err := rows.Scan(&h.ID, &h.AgentID, &h.Metric, &h.Value, &capturedAt); err != nil {
			return nil, cortexerr.Storef("scan health snapshot: %v", err)
		}
		h.CapturedAt, _ = time.Parse(timeLayout, capturedAt)
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) ListContradictions(ctx context.Context, resolved *bool, limit int) ([]types.Contradiction, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := `SELECT id, memory_id_a, memory_id_b, reason, resolved, detected_at FROM contradictions`
	var args []any
	if resolved != nil {
		query += " WHERE resolved = ?"
		args = append(args, *resolved)
	}
	query += " ORDER BY detected_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortexerr.Storef("list contradictions: %v", err)
	}
	defer rows.Close()

	var out []types.Contradiction
	for rows.Next() {
		var c types.Contradiction
		var detectedAt string
		if err := rows.Scan(&c.ID, &c.MemoryIDA, &c.MemoryIDB, &c.Reason, &c.Resolved, &detectedAt); err != nil {
			return nil, cortexerr.Storef("scan contradiction: %v", err)
		}
		c.DetectedAt, _ = time.Parse(timeLayout, detectedAt)
		out = append(out, c)
	}
	return out, nil
}

// --- helpers shared with txn.go ---

func inClause(ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableTimeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var embedding, metadata sql.NullString
	var createdAt string
	var lastAccessed, deletedAt sql.NullString

	err := row.Scan(&m.ID, &m.Content, &embedding, &m.Tokens, &m.AgentID, &m.Tier, &m.Criticality, &metadata, &m.RetrievalCount, &createdAt, &lastAccessed, &deletedAt)
	if err != nil {
		return nil, err
	}

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &m.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if lastAccessed.Valid {
		t, _ := time.Parse(timeLayout, lastAccessed.String)
		m.LastAccessed = &t
	}
	if deletedAt.Valid {
		t, _ := time.Parse(timeLayout, deletedAt.String)
		m.DeletedAt = &t
	}

	return &m, nil
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var t types.Transaction
	var queryEmbedding, responseEmbedding, retrievedIDs sql.NullString
	var responseText sql.NullString
	var createdAt string

	err := row.Scan(&t.ID, &t.QueryText, &queryEmbedding, &responseText, &responseEmbedding, &retrievedIDs, &t.AgentID, &t.InputTokens, &t.OutputTokens, &t.Model, &t.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	if queryEmbedding.Valid && queryEmbedding.String != "" {
		json.Unmarshal([]byte(queryEmbedding.String), &t.QueryEmbedding)
	}
	if responseEmbedding.Valid && responseEmbedding.String != "" {
		json.Unmarshal([]byte(responseEmbedding.String), &t.ResponseEmbedding)
	}
	if retrievedIDs.Valid && retrievedIDs.String != "" {
		json.Unmarshal([]byte(retrievedIDs.String), &t.RetrievedMemoryIDs)
	}
	if responseText.Valid {
		s := responseText.String
		t.ResponseText = &s
	}
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return &t, nil
}

func scanCertificate(row rowScanner) (*types.ComplianceCertificate, error) {
	var c types.ComplianceCertificate
	var deletionTimestamp, gracePeriodEnd string
	var hardDeletedAt, verifiedAt, metadata sql.NullString
	var verified bool

	err := row.Scan(&c.ID, &c.UserID, &c.RequestType, &c.FootprintSnapshot, &c.NodesDeleted, &c.EdgesAffected,
		&deletionTimestamp, &gracePeriodEnd, &hardDeletedAt, &verified, &verifiedAt, &c.CertificateHash, &metadata)
	if err != nil {
		return nil, err
	}

	c.DeletionTimestamp, _ = time.Parse(timeLayout, deletionTimestamp)
	c.GracePeriodEnd, _ = time.Parse(timeLayout, gracePeriodEnd)
	c.Verified = verified
	if hardDeletedAt.Valid {
		t, _ := time.Parse(timeLayout, hardDeletedAt.String)
		c.HardDeletedAt = &t
	}
	if verifiedAt.Valid {
		t, _ := time.Parse(timeLayout, verifiedAt.String)
		c.VerifiedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &c.Metadata)
	}

	return &c, nil
}
