package sqlite

// Schema is applied idempotently at construction time, the same pattern the
// teacher's postgres.NewMemoryStore uses for its embedded Schema constant.
// Vector/list-valued columns (embeddings, memory id lists, statement lists,
// metadata) are stored as JSON text, since SQLite has no native array or
// JSONB type; the Postgres backend uses real array/JSONB columns instead
// (see internal/store/postgres/schema.go).
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	embedding TEXT,
	tokens INTEGER NOT NULL DEFAULT 0,
	agent_id TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'warm',
	criticality REAL NOT NULL DEFAULT 0,
	metadata TEXT,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_accessed TEXT,
	deleted_at TEXT
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	query_text TEXT NOT NULL,
	query_embedding TEXT,
	response_text TEXT,
	response_embedding TEXT,
	retrieved_memory_ids TEXT,
	agent_id TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	model TEXT,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attribution_scores (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	transaction_id TEXT NOT NULL,
	score REAL NOT NULL,
	raw_score REAL NOT NULL,
	method TEXT NOT NULL,
	confidence REAL NOT NULL,
	compute_time_ms REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_profiles (
	memory_id TEXT PRIMARY KEY,
	mean_attribution REAL NOT NULL DEFAULT 0,
	m2 REAL NOT NULL DEFAULT 0,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	total_attribution REAL NOT NULL DEFAULT 0,
	trend TEXT NOT NULL DEFAULT 'stable',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_cost_configs (
	agent_id TEXT PRIMARY KEY,
	input_token_cost REAL NOT NULL,
	output_token_cost REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS interaction_nodes (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	transaction_cost REAL NOT NULL DEFAULT 0,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS memory_nodes (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	status TEXT NOT NULL,
	shard_id INTEGER NOT NULL,
	slice_id INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	created_by_user_id TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	criticality TEXT NOT NULL DEFAULT 'normal',
	metadata TEXT,
	deletion_scheduled_at TEXT
);

CREATE TABLE IF NOT EXISTS summary_nodes (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source_memory_count INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	method TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS embedding_nodes (
	id TEXT PRIMARY KEY,
	vector_ref TEXT NOT NULL,
	model_version TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS response_nodes (
	id TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL,
	statements TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS creation_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS attribution_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	score REAL NOT NULL,
	score_type TEXT NOT NULL,
	version INTEGER NOT NULL,
	is_current INTEGER NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_attribution_edges_current_target ON attribution_edges(target_id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_attribution_edges_current_source ON attribution_edges(source_id) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS derivation_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	derivation_type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS statement_attribution_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_id TEXT NOT NULL,
	response_id TEXT NOT NULL,
	statement_index INTEGER NOT NULL,
	score REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS compliance_certificates (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	request_type TEXT NOT NULL,
	footprint_snapshot BLOB,
	nodes_deleted INTEGER NOT NULL DEFAULT 0,
	edges_affected INTEGER NOT NULL DEFAULT 0,
	deletion_timestamp TEXT NOT NULL,
	grace_period_end TEXT NOT NULL,
	hard_deleted_at TEXT,
	verified INTEGER NOT NULL DEFAULT 0,
	verified_at TEXT,
	certificate_hash TEXT NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS health_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL NOT NULL,
	captured_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contradictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	memory_id_a TEXT NOT NULL,
	memory_id_b TEXT NOT NULL,
	reason TEXT NOT NULL,
	resolved INTEGER NOT NULL DEFAULT 0,
	detected_at TEXT NOT NULL
);
`
