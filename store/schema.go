package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Capture sessions: one per project/topic/audience onboarding
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    project_name TEXT NOT NULL,
    topic TEXT NOT NULL,
    audience TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Conversation history, user and assistant turns interleaved
CREATE TABLE IF NOT EXISTS chat_turns (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    turn_number INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(session_id, turn_number)
);

-- Knowledge graph nodes
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    node_type TEXT NOT NULL CHECK (node_type IN ('idea', 'story', 'framework', 'definition', 'evidence', 'theme')),
    title TEXT NOT NULL,
    summary TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Optional node embeddings via sqlite-vec, keyed by the nodes rowid
CREATE VIRTUAL TABLE IF NOT EXISTS vec_nodes USING vec0(
    node_rowid INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Typed semantic edges between nodes
CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    source_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    edge_type TEXT NOT NULL CHECK (edge_type IN ('supports', 'example_of', 'expands_on', 'related_to', 'contradicts')),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Scored nuggets, one per node
CREATE TABLE IF NOT EXISTS nuggets (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    node_id TEXT NOT NULL UNIQUE REFERENCES nodes(id) ON DELETE CASCADE,
    nugget_type TEXT NOT NULL,
    title TEXT NOT NULL,
    short_summary TEXT,
    score INTEGER NOT NULL,
    dimension_scores JSON,
    missing_fields JSON,
    next_questions JSON,
    status TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'explored', 'parked')),
    user_feedback TEXT CHECK (user_feedback IN ('up', 'down')),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Where each node came from
CREATE TABLE IF NOT EXISTS provenance (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    source_type TEXT NOT NULL CHECK (source_type IN ('chat', 'upload')),
    source_id TEXT,
    confidence TEXT CHECK (confidence IN ('low', 'med', 'high')),
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Uploaded document registry
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    content_type TEXT,
    storage_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id);
CREATE INDEX IF NOT EXISTS idx_nodes_session ON nodes(session_id);
CREATE INDEX IF NOT EXISTS idx_edges_session ON edges(session_id);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_node_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_node_id);
CREATE INDEX IF NOT EXISTS idx_nuggets_session ON nuggets(session_id);
CREATE INDEX IF NOT EXISTS idx_nuggets_score ON nuggets(score);
CREATE INDEX IF NOT EXISTS idx_provenance_node ON provenance(node_id);
CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id);
`, embeddingDim)
}
