// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
// Point ids are chunk ordinals.
package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"biblerag/internal/index"
)

const upsertBatch = 256

type Config struct {
	Addr       string // host:port of the gRPC listener, 6334 by default
	APIKey     string
	Collection string
}

// Storage is a Qdrant-backed index.
type Storage struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	apiKey      string
	metric      index.Metric
	dimension   int
}

func NewStorage(cfg Config, metric index.Metric) (*Storage, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6334" // 6333 is the http server port
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name is required")
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s: %w", cfg.Addr, err)
	}
	return &Storage{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		apiKey:      cfg.APIKey,
		metric:      metric,
	}, nil
}

func (s *Storage) Close() error { return s.conn.Close() }

// Metric is the metric the collection is searched with.
func (s *Storage) Metric() index.Metric { return s.metric }

func (s *Storage) ctx(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

func (s *Storage) distance() qdrant.Distance {
	if s.metric == index.MetricIP {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Euclid
}

// Init drops any existing collection and creates an empty one.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	ctx = s.ctx(ctx)
	if _, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.collection}); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("deleting collection %s: %w", s.collection, err)
	}
	_, err := s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: s.distance(),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	s.dimension = dimension
	return nil
}

// SetDimension records the dimension of an existing collection.
func (s *Storage) SetDimension(dimension int) { s.dimension = dimension }

func (s *Storage) Upsert(ctx context.Context, first int, vectors [][]float32) error {
	ctx = s.ctx(ctx)
	wait := true
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != s.dimension {
				return index.ErrDimensionMismatch
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(first + i)),
				Vectors: qdrant.NewVectors(vectors[i]...),
			})
		}
		resp, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upserting points %d-%d: %w", first+start, first+end-1, err)
		}
		st := resp.GetResult().GetStatus()
		if st != qdrant.UpdateStatus_Acknowledged && st != qdrant.UpdateStatus_Completed {
			return fmt.Errorf("upserting points: status %s", st)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]index.Hit, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, index.ErrDimensionMismatch
	}
	if topK <= 0 {
		topK = 5
	}
	resp, err := s.points.Search(s.ctx(ctx), &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	hits := make([]index.Hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		h := index.Hit{Ordinal: int(p.GetId().GetNum()), Distance: float64(p.GetScore())}
		// Dot scores are similarities; Euclid scores are already distances.
		if s.metric == index.MetricIP {
			h.Distance = 1 - h.Distance
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (s *Storage) Len(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(s.ctx(ctx), &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.collections.Delete(s.ctx(ctx), &qdrant.DeleteCollection{CollectionName: s.collection})
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}
