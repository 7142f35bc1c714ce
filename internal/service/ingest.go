package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"biblerag/internal/chunker"
	"biblerag/internal/domain"
	"biblerag/internal/embedding"
	"biblerag/internal/index"
	"biblerag/internal/index/sqlitevec"
	"biblerag/internal/source"
	"biblerag/internal/store"
)

// ErrEmptyCorpus means the sources parsed into zero chunks.
var ErrEmptyCorpus = errors.New("biblerag: corpus produced no chunks")

// BuildOptions describes one artifact build.
type BuildOptions struct {
	Paths        []string
	ArtifactPath string
	Chunker      chunker.Options
	Embedder     domain.Embedder
	Metric       index.Metric
	Workers      int
	BatchSize    int
	// Remote, when set, receives a copy of the vectors (e.g. a Qdrant
	// collection). Backend and Collection are recorded in the metadata.
	Remote     index.Storage
	Backend    string
	Collection string
}

// BuildReport summarizes a finished build.
type BuildReport struct {
	Documents int
	Chunks    int
	Dimension int
	Hash      string
	Elapsed   time.Duration
}

// Build reads the sources, chunks and embeds them and writes the artifact.
// The chunk sequence and vector table are written to the same file so they
// cannot drift apart.
func Build(ctx context.Context, opts BuildOptions) (BuildReport, error) {
	start := time.Now()
	var rep BuildReport

	documents, err := source.Load(opts.Paths)
	if err != nil {
		return rep, err
	}
	ch, err := chunker.New(opts.Chunker)
	if err != nil {
		return rep, err
	}
	// Chunk
	var allChunks []domain.Chunk
	var allTexts []string
	contents := make([]string, 0, len(documents))
	for _, d := range documents {
		chunks, err := ch.Chunk(d)
		if err != nil {
			return rep, fmt.Errorf("chunking %s: %w", d.Path, err)
		}
		for _, c := range chunks {
			allChunks = append(allChunks, c)
			allTexts = append(allTexts, c.Text)
		}
		contents = append(contents, d.Content)
		slog.Info("ingest: document chunked", "path", d.Path, "chunks", len(chunks))
	}
	if len(allChunks) == 0 {
		return rep, ErrEmptyCorpus
	}

	// Prepare embedder with corpus
	if err := opts.Embedder.Prepare(ctx, allTexts); err != nil {
		return rep, fmt.Errorf("preparing embedder: %w", err)
	}
	vectors, err := embedAll(ctx, opts.Embedder, allTexts, opts.Workers, opts.Metric.Normalizes())
	if err != nil {
		return rep, err
	}
	dim := len(vectors[0])

	st, err := store.Create(opts.ArtifactPath)
	if err != nil {
		return rep, err
	}
	defer st.Close()

	if _, err := st.InsertChunks(ctx, allChunks); err != nil {
		return rep, err
	}
	vec := sqlitevec.NewStorage(st.DB(), sqlitevec.DefaultTable, opts.Metric)
	if err := writeIndex(ctx, vec, dim, vectors, opts.BatchSize); err != nil {
		return rep, fmt.Errorf("writing vector table: %w", err)
	}
	if opts.Remote != nil {
		if err := writeIndex(ctx, opts.Remote, dim, vectors, opts.BatchSize); err != nil {
			return rep, fmt.Errorf("writing %s index: %w", opts.Backend, err)
		}
	}
	if s, ok := opts.Embedder.(embedding.Stateful); ok {
		state, err := s.State()
		if err != nil {
			return rep, err
		}
		if err := st.SaveEmbedderState(ctx, state); err != nil {
			return rep, err
		}
	}

	backend := opts.Backend
	if backend == "" {
		backend = "sqlitevec"
	}
	meta := store.Meta{
		Strategy:   ch.Strategy(),
		Embedder:   opts.Embedder.Name(),
		Dimension:  dim,
		Metric:     opts.Metric,
		Normalized: opts.Metric.Normalizes(),
		ChunkCount: len(allChunks),
		CorpusHash: store.CorpusHash(contents...),
		Backend:    backend,
		Collection: opts.Collection,
		BuiltAt:    time.Now().UTC(),
	}
	if err := st.SaveMeta(ctx, meta); err != nil {
		return rep, err
	}

	rep = BuildReport{
		Documents: len(documents),
		Chunks:    len(allChunks),
		Dimension: dim,
		Hash:      meta.CorpusHash,
		Elapsed:   time.Since(start),
	}
	slog.Info("ingest: artifact written", "path", opts.ArtifactPath, "chunks", rep.Chunks,
		"dimension", dim, "embedder", meta.Embedder, "elapsed", rep.Elapsed)
	return rep, nil
}

// embedAll embeds texts with at most workers calls in flight. Every vector
// must have the same length.
func embedAll(ctx context.Context, emb domain.Embedder, texts []string, workers int, normalize bool) ([][]float32, error) {
	if workers <= 0 {
		workers = 1
	}
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, text := range texts {
		g.Go(func() error {
			v, err := emb.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			if normalize {
				v = embedding.Normalize(v)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: embedder %s returned an empty vector", index.ErrDimensionMismatch, emb.Name())
	}
	zero := 0
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has %d, want %d", index.ErrDimensionMismatch, i, len(v), dim)
		}
		if embedding.IsZero(v) {
			zero++
		}
	}
	if zero > 0 {
		slog.Warn("ingest: chunks embedded to zero vectors", "count", zero, "embedder", emb.Name())
	}
	return vectors, nil
}

func writeIndex(ctx context.Context, st index.Storage, dim int, vectors [][]float32, batch int) error {
	if err := st.Init(ctx, dim); err != nil {
		return err
	}
	if batch <= 0 {
		batch = len(vectors)
	}
	for first := 0; first < len(vectors); first += batch {
		end := min(first+batch, len(vectors))
		if err := st.Upsert(ctx, first, vectors[first:end]); err != nil {
			return err
		}
	}
	return nil
}
