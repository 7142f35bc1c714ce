package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"biblerag/internal/index"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "vec.db"))
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSearchEmptyTable(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "", index.MetricL2)
	if err := s.Init(ctx, 3); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Search on empty = %v, %v", hits, err)
	}
}

func TestSearchL2(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "", index.MetricL2)
	if err := s.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, 0, [][]float32{{0, 0}, {3, 4}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, []float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []index.Hit{{Ordinal: 0, Distance: 0}, {Ordinal: 2, Distance: 1}, {Ordinal: 1, Distance: 5}}
	if len(hits) != len(want) {
		t.Fatalf("hits = %+v", hits)
	}
	for i := range want {
		if hits[i].Ordinal != want[i].Ordinal || math.Abs(hits[i].Distance-want[i].Distance) > 1e-5 {
			t.Errorf("hit %d = %+v, want %+v", i, hits[i], want[i])
		}
	}
}

func TestSearchIPUsesCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "vec_commentary", index.MetricIP)
	_ = s.Init(ctx, 2)
	_ = s.Upsert(ctx, 0, [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	hits, err := s.Search(ctx, []float32{0, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Ordinal != 1 || hits[1].Ordinal != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	if math.Abs(hits[1].Distance-0.2) > 1e-5 {
		t.Errorf("distance = %v, want 1 - 0.8", hits[1].Distance)
	}
}

func TestSearchIPWithZeroVector(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "", index.MetricIP)
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, 0, [][]float32{{-1, 0}, {0, 0}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []index.Hit{{Ordinal: 2, Distance: 0}, {Ordinal: 1, Distance: 1}, {Ordinal: 0, Distance: 2}}
	if len(hits) != len(want) {
		t.Fatalf("hits = %+v", hits)
	}
	for i := range want {
		if hits[i].Ordinal != want[i].Ordinal || math.Abs(hits[i].Distance-want[i].Distance) > 1e-5 {
			t.Errorf("hit %d = %+v, want %+v", i, hits[i], want[i])
		}
	}
}

func TestSearchKLargerThanTable(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "", index.MetricL2)
	_ = s.Init(ctx, 2)
	_ = s.Upsert(ctx, 0, [][]float32{{0, 0}, {1, 0}, {0, 2}})
	for _, k := range []int{4, MaxK + 1, 5000} {
		hits, err := s.Search(ctx, []float32{0, 0}, k)
		if err != nil {
			t.Fatalf("Search(k=%d): %v", k, err)
		}
		if len(hits) != 3 {
			t.Errorf("Search(k=%d) returned %d hits, want 3", k, len(hits))
		}
	}
}

func TestVectorsAndLen(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	s := NewStorage(db, "", index.MetricL2)
	_ = s.Init(ctx, 1)
	if err := s.Upsert(ctx, 0, [][]float32{{1}, {2}, {3}}); err != nil {
		t.Fatal(err)
	}

	reopened := Open(db, "", index.MetricL2, 1)
	n, err := reopened.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len = %d, %v", n, err)
	}
	vs, err := reopened.Vectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vs {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d = %v", i, v)
		}
	}

	if err := reopened.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := reopened.Len(ctx); n != 0 {
		t.Errorf("Len after Clear = %d", n)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(openDB(t), "", index.MetricL2)
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, 0, [][]float32{{1, 2, 3}}); !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Upsert err = %v", err)
	}
	_ = s.Upsert(ctx, 0, [][]float32{{1, 2}})
	if _, err := s.Search(ctx, []float32{1}, 1); !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Search err = %v", err)
	}
	if err := s.Init(ctx, 0); err == nil {
		t.Error("Init(0) succeeded")
	}
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, -1.5, float32(math.Pi)}
	out := deserializeFloat32(serializeFloat32(in))
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("codec[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
