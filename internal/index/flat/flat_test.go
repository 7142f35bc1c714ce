package flat

import (
	"context"
	"errors"
	"math"
	"testing"

	"biblerag/internal/index"
)

func TestSearchEmptyIndex(t *testing.T) {
	s := NewStorage(index.MetricL2)
	if err := s.Init(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Search on empty = %v, %v", hits, err)
	}
}

func TestSearchL2(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(index.MetricL2)
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, 0, [][]float32{{0, 0}, {3, 4}, {1, 0}}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, []float32{0, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []index.Hit{{Ordinal: 0, Distance: 0}, {Ordinal: 2, Distance: 1}, {Ordinal: 1, Distance: 5}}
	if len(hits) != len(want) {
		t.Fatalf("hits = %v", hits)
	}
	for i := range want {
		if hits[i].Ordinal != want[i].Ordinal || math.Abs(hits[i].Distance-want[i].Distance) > 1e-9 {
			t.Errorf("hit %d = %+v, want %+v", i, hits[i], want[i])
		}
	}
}

func TestSearchIPAndTopK(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(index.MetricIP)
	_ = s.Init(ctx, 2)
	_ = s.Upsert(ctx, 0, [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}})
	hits, err := s.Search(ctx, []float32{0, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Ordinal != 1 || hits[1].Ordinal != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	if math.Abs(hits[0].Distance) > 1e-9 {
		t.Errorf("identical unit vectors distance = %v, want 0", hits[0].Distance)
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(index.MetricL2)
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, 0, [][]float32{{1, 2, 3}}); !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Upsert err = %v", err)
	}
	_ = s.Upsert(ctx, 0, [][]float32{{1, 2}})
	if _, err := s.Search(ctx, []float32{1}, 1); !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Search err = %v", err)
	}
}

func TestUpsertAtOffset(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(index.MetricL2)
	_ = s.Init(ctx, 1)
	_ = s.Upsert(ctx, 2, [][]float32{{5}})
	_ = s.Upsert(ctx, 0, [][]float32{{1}, {2}})
	if n, _ := s.Len(ctx); n != 3 {
		t.Fatalf("Len = %d, want 3", n)
	}
	hits, _ := s.Search(ctx, []float32{5}, 1)
	if hits[0].Ordinal != 2 {
		t.Errorf("nearest = %+v", hits[0])
	}
}
