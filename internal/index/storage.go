// Package index defines the similarity index contract shared by the flat,
// sqlite-vec and Qdrant backends. Every backend reports distances where
// lower is closer.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Metric is the distance an index ranks by.
type Metric string

const (
	// MetricL2 ranks by euclidean distance over raw vectors.
	MetricL2 Metric = "l2"
	// MetricIP ranks by inner product over unit vectors, reported as
	// 1 - dot so that lower stays closer.
	MetricIP Metric = "ip"
)

// ErrDimensionMismatch is returned when a vector does not match the index.
var ErrDimensionMismatch = errors.New("biblerag: vector dimension mismatch")

// ParseMetric accepts "l2" and "ip" ("cosine" is an alias for ip).
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclid", "euclidean":
		return MetricL2, nil
	case "ip", "dot", "cosine":
		return MetricIP, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Normalizes reports whether vectors must be unit length before they are
// stored or used as queries.
func (m Metric) Normalizes() bool { return m == MetricIP }

// Hit is one search result: the ordinal of the matched vector in build
// order and its distance to the query.
type Hit struct {
	Ordinal  int
	Distance float64
}

// Storage persists vectors keyed by ordinal and supports k-nearest search.
type Storage interface {
	// Init resets the index to an empty one of the given dimension.
	Init(ctx context.Context, dimension int) error
	// Upsert stores vectors at ordinals first, first+1, ...
	Upsert(ctx context.Context, first int, vectors [][]float32) error
	// Search returns up to topK hits, nearest first. An empty index yields
	// no hits and no error.
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
