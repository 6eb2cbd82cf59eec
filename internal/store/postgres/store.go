package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/cortexai/cortex-engine/internal/cortexerr"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// Store is the production store.Store backend.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// NewStore opens dsn, applies Schema and MigrationPartitions idempotently,
// and attempts to enable pgvector in a tolerant-degrade sequence: a
// server without the extension installed still starts, with
// pgvector-backed vector search disabled.
func NewStore(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, MigrationPartitions); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: apply partition migration: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		slog.Warn("postgres: pgvector extension not available, vector search disabled", "error", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
		if _, err := db.ExecContext(ctx, MigrationPgvector); err != nil {
			slog.Warn("postgres: failed to apply pgvector migration, vector search disabled", "error", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
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
	return &txn{tx: tx, pgvectorAvailable: s.pgvectorAvailable}, nil
}

// --- read surface ---

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories WHERE id = $1 AND deleted_at IS NULL`, id)
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
	argN := 1
	if opts.AgentID != "" {
		where += fmt.Sprintf(" AND agent_id = $%d", argN)
		args = append(args, opts.AgentID)
		argN++
	}
	if opts.Tier != "" {
		where += fmt.Sprintf(" AND tier = $%d", argN)
		args = append(args, opts.Tier)
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories "+where, args...).Scan(&total); err != nil {
		return store.PaginatedResult[types.Memory]{}, cortexerr.Storef("count memories: %v", err)
	}

	query := fmt.Sprintf("SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, argN, argN+1)
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
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []string, snapshot bool) ([]types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, content, embedding, tokens, agent_id, tier, criticality, metadata, retrieval_count, created_at, last_accessed, deleted_at FROM memories WHERE id = ANY($1)`
	if !snapshot {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
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
	row := s.db.QueryRowContext(ctx, `SELECT id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at FROM transactions WHERE id = $1`, id)
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

	where := "WHERE true"
	var args []any
	argN := 1
	if opts.AgentID != "" {
		where += fmt.Sprintf(" AND agent_id = $%d", argN)
		args = append(args, opts.AgentID)
		argN++
	}
	if opts.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, opts.Status)
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total); err != nil {
		return store.PaginatedResult[types.Transaction]{}, cortexerr.Storef("count transactions: %v", err)
	}

	query := fmt.Sprintf("SELECT id, query_text, query_embedding, response_text, response_embedding, retrieved_memory_ids, agent_id, input_tokens, output_tokens, model, status, created_at FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, argN, argN+1)
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
	rows, err := s.db.QueryContext(ctx, `SELECT id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms FROM attribution_scores WHERE transaction_id = $1 ORDER BY id ASC`, transactionID)
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
	rows, err := s.db.QueryContext(ctx, `SELECT id, memory_id, transaction_id, score, raw_score, method, confidence, compute_time_ms FROM attribution_scores WHERE memory_id = $1 ORDER BY id DESC`, memoryID)
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
	row := s.db.QueryRowContext(ctx, `SELECT memory_id, mean_attribution, m2, retrieval_count, total_attribution, trend, updated_at FROM memory_profiles WHERE memory_id = $1`, memoryID)
	var p types.MemoryProfile
	err := row.Scan(&p.MemoryID, &p.MeanAttribution, &p.M2, &p.RetrievalCount, &p.TotalAttribution, &p.Trend, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cortexerr.Storef("scan memory profile: %v", err)
	}
	return &p, nil
}

func (s *Store) GetAgentCostConfig(ctx context.Context, agentID string) (*types.AgentCostConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT agent_id, input_token_cost, output_token_cost FROM agent_cost_configs WHERE agent_id = $1`, agentID)
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
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM interaction_nodes WHERE user_id = $1`, userID)
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
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT target_id FROM creation_edges WHERE source_id = ANY($1)`, pq.Array(interactionIDs))
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

// FootprintRecursiveCTE is the literal WITH RECURSIVE form of the data
// footprint closure from, runnable through Store.RawQuery in
// one round trip. internal/footprint.ComputeUserFootprint does not call
// this directly — it drives the same closure with repeated
// CreationTargets/DerivationTargets hops so the identical Go code also
// works unmodified against the sqlite backend — but the query is kept here
// for operators who want a single-statement equivalent against Postgres
// directly (e.g. from psql, or a future bulk-export job).
const FootprintRecursiveCTE = `
WITH RECURSIVE reachable(id, kind) AS (
	SELECT target_id, 'memory' FROM creation_edges WHERE source_id = ANY($1)
	UNION
	SELECT d.target_id, d.target_type
	FROM derivation_edges d
	JOIN reachable r ON d.source_id = r.id AND d.source_type = r.kind
)
SELECT DISTINCT id, kind FROM reachable
`

// DerivationTargets returns the set of nodes directly reachable from refs
// via one derivation_edges hop. internal/footprint composes repeated calls
// into the least-fixed-point closure of. A caller that wants
// the whole closure in a single round trip instead of one hop per call can
// issue the WITH RECURSIVE form of the same query directly through
// RawQuery (see FootprintRecursiveCTE in this package) — both paths read
// the same derivation_edges/creation_edges tables and agree by
// construction.
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
		clauses += fmt.Sprintf("(source_id = $%d AND source_type = $%d)", len(args)+1, len(args)+2)
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
	err := s.db.QueryRowContext(ctx, `SELECT 'memory' FROM memory_nodes WHERE id = $1 UNION ALL SELECT 'summary' FROM summary_nodes WHERE id = $1 UNION ALL SELECT 'embedding' FROM embedding_nodes WHERE id = $1`, id).Scan(&kind)
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
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT target_id FROM attribution_edges WHERE is_current AND score > 0 AND source_id = ANY($1)`, pq.Array(memoryIDs))
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
	metadata, err := json.Marshal(cert.Metadata)
	if err != nil {
		return cortexerr.Storef("marshal certificate metadata: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compliance_certificates (id, user_id, request_type, footprint_snapshot, nodes_deleted, edges_affected, deletion_timestamp, grace_period_end, hard_deleted_at, verified, verified_at, certificate_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT(id) DO UPDATE SET verified = excluded.verified, verified_at = excluded.verified_at, hard_deleted_at = excluded.hard_deleted_at`,
		cert.ID, cert.UserID, cert.RequestType, cert.FootprintSnapshot, cert.NodesDeleted, cert.EdgesAffected,
		cert.DeletionTimestamp, cert.GracePeriodEnd, cert.HardDeletedAt, cert.Verified, cert.VerifiedAt, cert.CertificateHash, metadata)
	if err != nil {
		return cortexerr.Storef("save certificate: %v", err)
	}
	return nil
}

func (s *Store) GetCertificate(ctx context.Context, id string) (*types.ComplianceCertificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, request_type, footprint_snapshot, nodes_deleted, edges_affected, deletion_timestamp, grace_period_end, hard_deleted_at, verified, verified_at, certificate_hash, metadata FROM compliance_certificates WHERE id = $1`, id)
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
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent_id, metric, value, captured_at FROM health_snapshots WHERE agent_id = $1 ORDER BY captured_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, cortexerr.Storef("list health snapshots: %v", err)
	}
	defer rows.Close()

	var out []types.HealthSnapshot
	for rows.Next() {
		var h types.HealthSnapshot
		if err := rows.Scan(&h.ID, &h.AgentID, &h.Metric, &h.Value, &h.CapturedAt); err != nil {
			return nil, cortexerr.Storef("scan health snapshot: %v", err)
		}
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
		query += " WHERE resolved = $1"
		args = append(args, *resolved)
		query += " ORDER BY detected_at DESC LIMIT $2"
	} else {
		query += " ORDER BY detected_at DESC LIMIT $1"
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortexerr.Storef("list contradictions: %v", err)
	}
	defer rows.Close()

	var out []types.Contradiction
	for rows.Next() {
		var c types.Contradiction
		if err := rows.Scan(&c.ID, &c.MemoryIDA, &c.MemoryIDB, &c.Reason, &c.Resolved, &c.DetectedAt); err != nil {
			return nil, cortexerr.Storef("scan contradiction: %v", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- helpers shared with txn.go ---

func scanMemory(row interface{ Scan(dest ...any) error }) (*types.Memory, error) {
	var m types.Memory
	var embedding pq.Float64Array
	var metadataRaw []byte

	err := row.Scan(&m.ID, &m.Content, &embedding, &m.Tokens, &m.AgentID, &m.Tier, &m.Criticality, &metadataRaw, &m.RetrievalCount, &m.CreatedAt, &m.LastAccessed, &m.DeletedAt)
	if err != nil {
		return nil, err
	}
	m.Embedding = []float64(embedding)
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

func scanTransaction(row interface{ Scan(dest ...any) error }) (*types.Transaction, error) {
	var t types.Transaction
	var queryEmbedding, responseEmbedding pq.Float64Array
	var retrievedIDs pq.StringArray
	var responseText sql.NullString

	err := row.Scan(&t.ID, &t.QueryText, &queryEmbedding, &responseText, &responseEmbedding, &retrievedIDs, &t.AgentID, &t.InputTokens, &t.OutputTokens, &t.Model, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.QueryEmbedding = []float64(queryEmbedding)
	t.ResponseEmbedding = []float64(responseEmbedding)
	t.RetrievedMemoryIDs = []string(retrievedIDs)
	if responseText.Valid {
		s := responseText.String
		t.ResponseText = &s
	}
	return &t, nil
}

func scanCertificate(row interface{ Scan(dest ...any) error }) (*types.ComplianceCertificate, error) {
	var c types.ComplianceCertificate
	var metadataRaw []byte

	err := row.Scan(&c.ID, &c.UserID, &c.RequestType, &c.FootprintSnapshot, &c.NodesDeleted, &c.EdgesAffected,
		&c.DeletionTimestamp, &c.GracePeriodEnd, &c.HardDeletedAt, &c.Verified, &c.VerifiedAt, &c.CertificateHash, &metadataRaw)
	if err != nil {
		return nil, err
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &c, nil
}

// vectorOf converts a float64 embedding into a pgvector.Vector of float32
// for the dual-write into both the jsonb and pgvector columns.
func vectorOf(embedding []float64) pgvector.Vector {
	f32 := make([]float32, len(embedding))
	for i, v := range embedding {
		f32[i] = float32(v)
	}
	return pgvector.NewVector(f32)
}
