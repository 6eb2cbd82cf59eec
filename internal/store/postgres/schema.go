// Package postgres is the production store.Store backend: database/sql
// over github.com/lib/pq, applied idempotently at startup. Vector/list
// columns use native Postgres array and JSONB types instead of the sqlite
// backend's JSON-text columns (see internal/store/sqlite/schema.go).
package postgres

// Schema is applied with db.Exec at construction time. Every statement is
// IF NOT EXISTS so repeated application against an already-migrated
// database is a no-op.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding DOUBLE PRECISION[],
	tokens INTEGER NOT NULL DEFAULT 0,
	agent_id TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'warm',
	criticality REAL NOT NULL DEFAULT 0,
	metadata JSONB,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_accessed TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_memories_agent_id ON memories(agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories(deleted_at);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	query_embedding DOUBLE PRECISION[],
	response_text TEXT,
	response_embedding DOUBLE PRECISION[],
	retrieved_memory_ids TEXT[],
	agent_id TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	model TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_agent_id ON transactions(agent_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);

CREATE TABLE IF NOT EXISTS attribution_scores (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	raw_score DOUBLE PRECISION NOT NULL,
	method TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	compute_time_ms DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attribution_scores_transaction_id ON attribution_scores(transaction_id);
CREATE INDEX IF NOT EXISTS idx_attribution_scores_memory_id ON attribution_scores(memory_id);

CREATE TABLE IF NOT EXISTS memory_profiles (
	memory_id TEXT PRIMARY KEY,
	mean_attribution DOUBLE PRECISION NOT NULL DEFAULT 0,
	m2 DOUBLE PRECISION NOT NULL DEFAULT 0,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	total_attribution DOUBLE PRECISION NOT NULL DEFAULT 0,
	trend TEXT NOT NULL DEFAULT 'stable',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_cost_configs (
	agent_id TEXT PRIMARY KEY,
	input_token_cost DOUBLE PRECISION NOT NULL,
	output_token_cost DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS interaction_nodes (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	agent_id TEXT NOT NULL,
	transaction_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_interaction_nodes_user_id ON interaction_nodes(user_id);

-- memory_nodes is HASH partitioned on shard_id (16 partitions, /
-- SPEC_FULL §6.5's "16 hash partitions" default). Partitions are created
-- below so a fresh database is immediately usable.
CREATE TABLE IF NOT EXISTS memory_nodes (
	id TEXT NOT NULL,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	status TEXT NOT NULL,
	shard_id INTEGER NOT NULL,
	slice_id INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_by_user_id TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	criticality TEXT NOT NULL DEFAULT 'normal',
	metadata JSONB,
	deletion_scheduled_at TIMESTAMPTZ,
	PRIMARY KEY (id, shard_id)
) PARTITION BY HASH (shard_id);
CREATE INDEX IF NOT EXISTS idx_memory_nodes_created_by_user_id ON memory_nodes(created_by_user_id);

CREATE TABLE IF NOT EXISTS summary_nodes (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source_memory_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	method TEXT NOT NULL,
	metadata JSONB
);

CREATE TABLE IF NOT EXISTS embedding_nodes (
	id TEXT PRIMARY KEY,
	vector_ref TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	metadata JSONB
);

CREATE TABLE IF NOT EXISTS response_nodes (
	id TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL,
	statements JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_response_nodes_interaction_id ON response_nodes(interaction_id);

CREATE TABLE IF NOT EXISTS creation_edges (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_creation_edges_source_id ON creation_edges(source_id);

-- attribution_edges is RANGE partitioned on created_at, monthly, plus a
-- DEFAULT catch-all so inserts never fail for a month without an explicit
-- partition yet (SPEC_FULL §6.5).
CREATE TABLE IF NOT EXISTS attribution_edges (
	id BIGSERIAL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	score_type TEXT NOT NULL,
	version INTEGER NOT NULL,
	is_current BOOLEAN NOT NULL,
	metadata JSONB,
	PRIMARY KEY (id, created_at)
) PARTITION BY RANGE (created_at);
CREATE TABLE IF NOT EXISTS attribution_edges_default PARTITION OF attribution_edges DEFAULT;
CREATE INDEX IF NOT EXISTS idx_attribution_edges_current_target ON attribution_edges(target_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_attribution_edges_current_source ON attribution_edges(source_id) WHERE is_current;

CREATE TABLE IF NOT EXISTS derivation_edges (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	derivation_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_derivation_edges_source ON derivation_edges(source_id, source_type);
CREATE INDEX IF NOT EXISTS idx_derivation_edges_target ON derivation_edges(target_id, target_type);

CREATE TABLE IF NOT EXISTS statement_attribution_edges (
	id BIGSERIAL PRIMARY KEY,
	memory_id TEXT NOT NULL,
	response_id TEXT NOT NULL,
	statement_index INTEGER NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_statement_attribution_edges_response_id ON statement_attribution_edges(response_id);

CREATE TABLE IF NOT EXISTS compliance_certificates (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	request_type TEXT NOT NULL,
	footprint_snapshot BYTEA,
	nodes_deleted INTEGER NOT NULL DEFAULT 0,
	edges_affected INTEGER NOT NULL DEFAULT 0,
	deletion_timestamp TIMESTAMPTZ NOT NULL,
	grace_period_end TIMESTAMPTZ NOT NULL,
	hard_deleted_at TIMESTAMPTZ,
	verified BOOLEAN NOT NULL DEFAULT false,
	verified_at TIMESTAMPTZ,
	certificate_hash TEXT NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_compliance_certificates_user_id ON compliance_certificates(user_id);

CREATE TABLE IF NOT EXISTS health_snapshots (
	id BIGSERIAL PRIMARY KEY,
	agent_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_health_snapshots_agent_id ON health_snapshots(agent_id, captured_at DESC);

CREATE TABLE IF NOT EXISTS contradictions (
	id BIGSERIAL PRIMARY KEY,
	memory_id_a TEXT NOT NULL,
	memory_id_b TEXT NOT NULL,
	reason TEXT NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT false,
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contradictions_resolved ON contradictions(resolved);
`

// MigrationPartitions creates the 16 HASH partitions of memory_nodes
// idempotently. Applied once at startup after Schema, as a separate
// staged migration rather than folded into the base schema.
const MigrationPartitions = `
DO $$
DECLARE
	i INTEGER;
BEGIN
	FOR i IN 0..15 LOOP
		EXECUTE format(
			'CREATE TABLE IF NOT EXISTS memory_nodes_shard_%s PARTITION OF memory_nodes FOR VALUES WITH (MODULUS 16, REMAINDER %s)',
			i, i
		);
	END LOOP;
END$$;
`

// MigrationPgvector adds a pgvector column to embedding_nodes holding
// EmbeddingNode.VectorRef's referenced vector. Only applied when the
// vector extension is available (pgvectorAvailable).
const MigrationPgvector = `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'embedding_nodes' AND column_name = 'vector'
	) THEN
		ALTER TABLE embedding_nodes ADD COLUMN vector vector;
	END IF;
END
$$;
`
