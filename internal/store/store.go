// Package store persists a built corpus as one SQLite artifact: build
// metadata, the chunk sequence and the vector table, always written and
// loaded together.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/blake3"

	"biblerag/internal/domain"
	"biblerag/internal/index"
)

var (
	// ErrIndexChunkMismatch means the vector index and chunk sequence of an
	// artifact do not line up; serving from it would return wrong chunks.
	ErrIndexChunkMismatch = errors.New("biblerag: index and chunk sequence do not match")
	// ErrNoArtifact is returned by Open when the artifact file is missing.
	ErrNoArtifact = errors.New("biblerag: artifact not found")
)

const (
	keyMeta          = "meta"
	keyEmbedderState = "embedder_state"
)

// Meta describes how an artifact was built. Serving trusts it over config.
type Meta struct {
	Strategy   domain.Strategy `json:"strategy"`
	Embedder   string          `json:"embedder"`
	Dimension  int             `json:"dimension"`
	Metric     index.Metric    `json:"metric"`
	Normalized bool            `json:"normalized"`
	ChunkCount int             `json:"chunk_count"`
	CorpusHash string          `json:"corpus_hash"`
	Backend    string          `json:"backend"`
	Collection string          `json:"collection,omitempty"`
	BuiltAt    time.Time       `json:"built_at"`
}

// Store is an open artifact database.
type Store struct {
	db   *sql.DB
	path string
}

// Create replaces any artifact at path with an empty one.
func Create(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing old artifact: %w", err)
		}
	}
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Open opens an existing artifact.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoArtifact, path)
		}
		return nil, err
	}
	return open(path)
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB, shared with the sqlite-vec index.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the artifact file path.
func (s *Store) Path() string { return s.path }

// SaveMeta writes build metadata.
func (s *Store) SaveMeta(ctx context.Context, m Meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.put(ctx, keyMeta, string(data))
}

// Meta reads build metadata.
func (s *Store) Meta(ctx context.Context) (Meta, error) {
	var m Meta
	v, err := s.get(ctx, keyMeta)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return m, fmt.Errorf("decoding meta: %w", err)
	}
	return m, nil
}

// SaveEmbedderState stores opaque embedder state, such as a TF-IDF
// vocabulary.
func (s *Store) SaveEmbedderState(ctx context.Context, state []byte) error {
	return s.put(ctx, keyEmbedderState, string(state))
}

// EmbedderState returns the stored embedder state, or nil if none.
func (s *Store) EmbedderState(ctx context.Context) ([]byte, error) {
	v, err := s.get(ctx, keyEmbedderState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	return v, err
}

// InsertChunks appends chunks, assigning ordinals from the current count.
// The returned slice carries the assigned ordinals in Index.
func (s *Store) InsertChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, "SELECT count(*) FROM chunks").Scan(&next); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (ordinal, document_id, chunk_id, content) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, c := range chunks {
			c.Index = next + i
			if _, err := stmt.ExecContext(ctx, c.Index, c.DocumentID, c.ChunkID, c.Text); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
			}
			out[i] = c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Chunks returns the chunk sequence in ordinal order. A gap in ordinals is
// reported as ErrIndexChunkMismatch.
func (s *Store) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ordinal, document_id, chunk_id, content FROM chunks ORDER BY ordinal")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.Index, &c.DocumentID, &c.ChunkID, &c.Text); err != nil {
			return nil, err
		}
		if c.Index != len(chunks) {
			return nil, fmt.Errorf("%w: chunk ordinal %d at position %d", ErrIndexChunkMismatch, c.Index, len(chunks))
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CheckMatched verifies that metadata, chunk sequence and index agree on
// their length.
func CheckMatched(m Meta, chunks int, indexLen int) error {
	if chunks != m.ChunkCount || indexLen != chunks {
		return fmt.Errorf("%w: meta=%d chunks=%d vectors=%d", ErrIndexChunkMismatch, m.ChunkCount, chunks, indexLen)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CorpusHash fingerprints the source texts an artifact was built from.
func CorpusHash(texts ...string) string {
	h := blake3.New()
	for _, t := range texts {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
