package flat

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"biblerag/internal/index"
)

// Storage is an in-memory exact index that scores every vector on each
// search.
type Storage struct {
	mu        sync.RWMutex
	metric    index.Metric
	dimension int
	vectors   [][]float32
}

func NewStorage(metric index.Metric) *Storage { return &Storage{metric: metric} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, first int, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return index.ErrDimensionMismatch
		}
	}
	if need := first + len(vectors); need > len(s.vectors) {
		s.vectors = append(s.vectors, make([][]float32, need-len(s.vectors))...)
	}
	copy(s.vectors[first:], vectors)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]index.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, index.ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 5
	}
	hits := make([]index.Hit, 0, len(s.vectors))
	for i, v := range s.vectors {
		if v == nil {
			continue
		}
		hits = append(hits, index.Hit{Ordinal: i, Distance: s.distance(v, vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func (s *Storage) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	return nil
}

func (s *Storage) distance(a, b []float32) float64 {
	if s.metric == index.MetricIP {
		return 1 - dot(a, b)
	}
	sum := 0.0
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
