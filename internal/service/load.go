package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"biblerag/internal/domain"
	"biblerag/internal/embedding"
	"biblerag/internal/index"
	"biblerag/internal/index/flat"
	"biblerag/internal/index/sqlitevec"
	"biblerag/internal/retrieval"
	"biblerag/internal/store"
)

// ErrEmbedderMismatch means the configured embedder is not the one the
// artifact was built with.
var ErrEmbedderMismatch = errors.New("biblerag: embedder does not match artifact")

// ErrMetricMismatch means a remote index is searched with a different
// metric than the artifact was built with.
var ErrMetricMismatch = errors.New("biblerag: index metric does not match artifact")

// LoadOptions selects an artifact and how to serve it.
type LoadOptions struct {
	Name     string
	Path     string
	Embedder domain.Embedder
	// Backend is flat, sqlitevec or qdrant. Empty uses the one recorded at
	// build time.
	Backend string
	// Remote serves the qdrant backend.
	Remote index.Storage
}

// Artifact is a loaded collection and the store backing it.
type Artifact struct {
	Collection *retrieval.Collection
	store      *store.Store
}

// Close releases the artifact database.
func (a *Artifact) Close() error { return a.store.Close() }

// Load opens an artifact and verifies that metadata, chunk sequence, index
// and embedder all agree. Any disagreement is fatal.
func Load(ctx context.Context, opts LoadOptions) (*Artifact, error) {
	st, err := store.Open(opts.Path)
	if err != nil {
		return nil, err
	}
	a, err := load(ctx, st, opts)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading %s artifact %s: %w", opts.Name, opts.Path, err)
	}
	return a, nil
}

func load(ctx context.Context, st *store.Store, opts LoadOptions) (*Artifact, error) {
	meta, err := st.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	if got := opts.Embedder.Name(); got != meta.Embedder {
		return nil, fmt.Errorf("%w: configured %s, built with %s", ErrEmbedderMismatch, got, meta.Embedder)
	}
	if s, ok := opts.Embedder.(embedding.Stateful); ok {
		state, err := st.EmbedderState(ctx)
		if err != nil {
			return nil, err
		}
		if state == nil {
			return nil, fmt.Errorf("%w: no %s state stored", ErrEmbedderMismatch, meta.Embedder)
		}
		if err := s.Restore(state); err != nil {
			return nil, fmt.Errorf("restoring embedder: %w", err)
		}
	}
	if d := opts.Embedder.Dimension(); d != 0 && d != meta.Dimension {
		return nil, fmt.Errorf("%w: embedder %d, artifact %d", index.ErrDimensionMismatch, d, meta.Dimension)
	}
	chunks, err := st.Chunks(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := openIndex(ctx, st, meta, opts)
	if err != nil {
		return nil, err
	}
	n, err := idx.Len(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.CheckMatched(meta, len(chunks), n); err != nil {
		return nil, err
	}
	slog.Info("service: artifact loaded", "name", opts.Name, "chunks", len(chunks),
		"strategy", meta.Strategy, "embedder", meta.Embedder, "metric", meta.Metric)
	return &Artifact{
		Collection: &retrieval.Collection{
			Name:     opts.Name,
			Embedder: opts.Embedder,
			Index:    idx,
			Chunks:   chunks,
			Meta:     meta,
		},
		store: st,
	}, nil
}

func openIndex(ctx context.Context, st *store.Store, meta store.Meta, opts LoadOptions) (index.Storage, error) {
	backend := opts.Backend
	if backend == "" {
		backend = meta.Backend
	}
	vec := sqlitevec.Open(st.DB(), sqlitevec.DefaultTable, meta.Metric, meta.Dimension)
	switch backend {
	case "sqlitevec", "":
		return vec, nil
	case "flat":
		vectors, err := vec.Vectors(ctx)
		if err != nil {
			return nil, err
		}
		mem := flat.NewStorage(meta.Metric)
		if err := mem.Init(ctx, meta.Dimension); err != nil {
			return nil, err
		}
		if err := mem.Upsert(ctx, 0, vectors); err != nil {
			return nil, err
		}
		return mem, nil
	case "qdrant":
		if opts.Remote == nil {
			return nil, errors.New("qdrant backend selected but not configured")
		}
		if m, ok := opts.Remote.(interface{ Metric() index.Metric }); ok && m.Metric() != meta.Metric {
			return nil, fmt.Errorf("%w: qdrant %s, artifact %s", ErrMetricMismatch, m.Metric(), meta.Metric)
		}
		if d, ok := opts.Remote.(interface{ SetDimension(int) }); ok {
			d.SetDimension(meta.Dimension)
		}
		return opts.Remote, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", backend)
}
