package store

// schemaSQL is the DDL for the artifact tables. The vec0 vector table is
// owned by the sqlitevec index and created on build.
const schemaSQL = `
-- Build metadata, one JSON value per key
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Chunk sequence; ordinal is the position the index refers to
CREATE TABLE IF NOT EXISTS chunks (
    ordinal INTEGER PRIMARY KEY,
    document_id TEXT NOT NULL,
    chunk_id TEXT NOT NULL,
    content TEXT NOT NULL
);
`
