package database

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the relational half of the store: documents, memories,
// the knowledge graph, and the ambient classification/metrics tables carried
// over from the teacher schema.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- DOCUMENTS TABLE
-- Chunks of a source artifact (code or prose). One row per chunk; "code:"
-- path prefix distinguishes source from prose per the tokenizer's mode.
-- =============================================================================
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	scope_id TEXT NOT NULL,
	path TEXT NOT NULL,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	start_line INTEGER,
	end_line INTEGER,
	embedding BLOB,
	symbol_name TEXT,
	symbol_type TEXT,
	signature TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_scope_path_chunk ON documents(scope_id, path, chunk_index);
CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents(scope_id);
CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(scope_id, path);
CREATE INDEX IF NOT EXISTS idx_documents_symbol ON documents(symbol_name);

-- =============================================================================
-- FILE HASHES TABLE
-- Skip re-ingest of unchanged files.
-- =============================================================================
CREATE TABLE IF NOT EXISTS file_hashes (
	scope_id TEXT NOT NULL,
	path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (scope_id, path)
);

-- =============================================================================
-- MEMORIES TABLE
-- Durable facts. scope_id NULL means globally visible.
-- =============================================================================
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	scope_id TEXT,
	content TEXT NOT NULL,
	tags TEXT, -- JSON array: ["tag1", "tag2"]
	source TEXT,
	kind TEXT NOT NULL DEFAULT 'observation',
	quality_score REAL,
	quality_factors TEXT, -- JSON object: {"factor": 0.5}
	embedding BLOB,
	access_count REAL NOT NULL DEFAULT 0,
	last_accessed DATETIME,
	valid_from DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	valid_until DATETIME,
	invalidated_by TEXT REFERENCES memories(id) ON DELETE SET NULL,
	correction_count INTEGER NOT NULL DEFAULT 0,
	is_invariant BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope_id);
CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_validity ON memories(valid_from, valid_until);
CREATE INDEX IF NOT EXISTS idx_memories_invalidated_by ON memories(invalidated_by);

-- =============================================================================
-- MEMORY LINKS TABLE
-- Typed directed edges between memories, with temporal validity.
-- =============================================================================
CREATE TABLE IF NOT EXISTS memory_links (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation TEXT NOT NULL CHECK (
		relation IN ('related', 'caused_by', 'leads_to', 'similar_to', 'contradicts', 'implements', 'supersedes', 'references')
	),
	weight REAL NOT NULL CHECK (weight > 0.0 AND weight <= 1.0),
	valid_from DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	valid_until DATETIME,
	llm_enriched BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (source_id, target_id, relation)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_links_relation ON memory_links(relation);
CREATE INDEX IF NOT EXISTS idx_links_source_target ON memory_links(source_id, target_id);
CREATE INDEX IF NOT EXISTS idx_links_target_source ON memory_links(target_id, source_id);
CREATE INDEX IF NOT EXISTS idx_links_validity ON memory_links(valid_from, valid_until);

-- =============================================================================
-- CENTRALITY SCORES TABLE
-- Cache with implicit TTL (checked against updated_at at read time).
-- =============================================================================
CREATE TABLE IF NOT EXISTS centrality_scores (
	memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	degree INTEGER NOT NULL DEFAULT 0,
	normalized_degree REAL NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- TOKEN FREQUENCIES TABLE
-- Unigram counts driving the flatcase segmenter. Corpus-scoped is acceptable;
-- corpus='' stores the global table.
-- =============================================================================
CREATE TABLE IF NOT EXISTS token_frequencies (
	corpus TEXT NOT NULL DEFAULT '',
	token TEXT NOT NULL,
	frequency INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (corpus, token)
);

-- =============================================================================
-- CATEGORIES TABLE
-- Hierarchical organization with parent support, kept from the teacher as an
-- optional classification layer orthogonal to scope/temporal/graph machinery.
-- =============================================================================
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL,
	parent_category_id TEXT,
	auto_generated BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (parent_category_id) REFERENCES categories(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS memory_categorizations (
	memory_id TEXT NOT NULL,
	category_id TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (memory_id, category_id),
	FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
	FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE CASCADE
);

-- =============================================================================
-- DOMAINS TABLE
-- Coarser-grained partition within a scope (e.g. "backend", "infra").
-- =============================================================================
CREATE TABLE IF NOT EXISTS domains (
	id TEXT PRIMARY KEY,
	scope_id TEXT,
	name TEXT NOT NULL,
	description TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_domains_scope_name ON domains(scope_id, name);

-- =============================================================================
-- PERFORMANCE METRICS TABLE
-- Per-operation timing, kept from the teacher as ambient observability.
-- =============================================================================
CREATE TABLE IF NOT EXISTS performance_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_type TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL,
	item_count INTEGER,
	timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_metrics_operation ON performance_metrics(operation_type);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON performance_metrics(timestamp);
`

// vecSchemaTemplate contains the vec0 virtual table definitions for the
// embedded ANN profile. Dimension is substituted at InitSchema() time since it is
// a deployment config value, not a compile-time constant.
const vecSchemaTemplate = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
	embedding FLOAT[%d]
);

CREATE TABLE IF NOT EXISTS vec_documents_map (
	vec_rowid INTEGER PRIMARY KEY,
	entity_id TEXT NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(
	embedding FLOAT[%d]
);

CREATE TABLE IF NOT EXISTS vec_memories_map (
	vec_rowid INTEGER PRIMARY KEY,
	entity_id TEXT NOT NULL UNIQUE REFERENCES memories(id) ON DELETE CASCADE
);
`

// RelationTypes contains the eight relation types a MemoryLink may carry.
var RelationTypes = []string{
	"related",
	"caused_by",
	"leads_to",
	"similar_to",
	"contradicts",
	"implements",
	"supersedes",
	"references",
}

// MemoryKinds contains the recognized Memory kinds. New kinds are accepted
// at the application layer (the column has no CHECK constraint) but these
// are the ones the ranker and consolidation engine understand.
var MemoryKinds = []string{
	"observation",
	"decision",
	"learning",
	"pattern",
	"error",
	"preference",
}

// IsValidRelationType reports whether t is one of RelationTypes.
func IsValidRelationType(t string) bool {
	for _, rt := range RelationTypes {
		if rt == t {
			return true
		}
	}
	return false
}
