// Package sqlitevec keeps vectors in a sqlite-vec vec0 virtual table inside
// the artifact database and answers KNN queries with it.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"biblerag/internal/index"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultTable is the vec0 table name used in artifact databases.
const DefaultTable = "vec_chunks"

// MaxK is the largest k a vec0 KNN query accepts.
const MaxK = 4096

// Storage is an index backed by a vec0 table. vec0 rowids start at 1, so
// ordinal n is stored at rowid n+1.
type Storage struct {
	db        *sql.DB
	table     string
	metric    index.Metric
	dimension int
}

// NewStorage binds to table in db. Call Init to create the table or Open to
// use an existing one.
func NewStorage(db *sql.DB, table string, metric index.Metric) *Storage {
	if table == "" {
		table = DefaultTable
	}
	return &Storage{db: db, table: table, metric: metric}
}

// Open binds to an existing table of the given dimension.
func Open(db *sql.DB, table string, metric index.Metric, dimension int) *Storage {
	s := NewStorage(db, table, metric)
	s.dimension = dimension
	return s
}

// vec0 has no inner-product metric; unit vectors under cosine distance give
// the same 1 - dot value.
func (s *Storage) vecMetric() string {
	if s.metric == index.MetricIP {
		return "cosine"
	}
	return "l2"
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.table); err != nil {
		return fmt.Errorf("dropping %s: %w", s.table, err)
	}
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE %s USING vec0(
    ordinal INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=%s
)`, s.table, dimension, s.vecMetric())
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating %s: %w", s.table, err)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, first int, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO "+s.table+" (ordinal, embedding) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, v := range vectors {
		if len(v) != s.dimension {
			tx.Rollback()
			return index.ErrDimensionMismatch
		}
		if _, err := stmt.ExecContext(ctx, first+i+1, serializeFloat32(v)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting vector %d: %w", first+i, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]index.Hit, error) {
	n, err := s.Len(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, index.ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 5
	}
	topK = min(topK, n, MaxK)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, distance
		FROM `+s.table+`
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serializeFloat32(vector), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []index.Hit
	for rows.Next() {
		var rowid int64
		var dist sql.NullFloat64
		if err := rows.Scan(&rowid, &dist); err != nil {
			return nil, err
		}
		// Cosine distance to a zero vector is NULL; 1 - dot gives 1.
		h := index.Hit{Ordinal: int(rowid - 1), Distance: 1}
		if dist.Valid {
			h.Distance = dist.Float64
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

func (s *Storage) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+s.table).Scan(&n)
	return n, err
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table)
	return err
}

// Vectors returns every stored vector in ordinal order. It is used to warm
// an in-memory index from the artifact.
func (s *Storage) Vectors(ctx context.Context) ([][]float32, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT ordinal, embedding FROM "+s.table+" ORDER BY ordinal")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]float32
	for rows.Next() {
		var rowid int64
		var blob []byte
		if err := rows.Scan(&rowid, &blob); err != nil {
			return nil, err
		}
		if int(rowid) != len(out)+1 {
			return nil, fmt.Errorf("vector ordinals not contiguous at %d", rowid-1)
		}
		out = append(out, deserializeFloat32(blob))
	}
	return out, rows.Err()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
