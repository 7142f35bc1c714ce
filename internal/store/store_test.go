package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"biblerag/internal/domain"
	"biblerag/internal/index"
	"biblerag/internal/index/sqlitevec"
)

func testChunks() []domain.Chunk {
	return []domain.Chunk{
		{DocumentID: "kjv", ChunkID: "kjv:0", Text: "genesis|1|1|In the beginning"},
		{DocumentID: "kjv", ChunkID: "kjv:1", Text: "genesis|1|2|And the earth"},
		{DocumentID: "kjv", ChunkID: "kjv:2", Text: "genesis|1|3|And God said"},
	}
}

func TestArtifactRoundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "scripture.db")

	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := s.InsertChunks(ctx, testChunks())
	if err != nil {
		t.Fatal(err)
	}
	if stored[2].Index != 2 {
		t.Errorf("assigned ordinal = %d, want 2", stored[2].Index)
	}
	vec := sqlitevec.NewStorage(s.DB(), "", index.MetricL2)
	if err := vec.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := vec.Upsert(ctx, 0, [][]float32{{0, 0}, {1, 0}, {0, 3}}); err != nil {
		t.Fatal(err)
	}
	meta := Meta{
		Strategy:   domain.StrategyRecord,
		Embedder:   "tfidf",
		Dimension:  2,
		Metric:     index.MetricL2,
		ChunkCount: 3,
		CorpusHash: CorpusHash("GENESIS"),
		Backend:    "sqlitevec",
		BuiltAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveMeta(ctx, meta); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEmbedderState(ctx, []byte(`{"terms":["god"]}`)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Meta(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.BuiltAt.Equal(meta.BuiltAt) {
		t.Errorf("BuiltAt = %v, want %v", got.BuiltAt, meta.BuiltAt)
	}
	got.BuiltAt = meta.BuiltAt
	if got != meta {
		t.Errorf("Meta() = %+v, want %+v", got, meta)
	}
	state, err := s.EmbedderState(ctx)
	if err != nil || string(state) != `{"terms":["god"]}` {
		t.Errorf("EmbedderState() = %q, %v", state, err)
	}
	chunks, err := s.Chunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[1].Text != "genesis|1|2|And the earth" {
		t.Fatalf("Chunks() = %+v", chunks)
	}

	vec = sqlitevec.Open(s.DB(), "", index.MetricL2, 2)
	n, err := vec.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckMatched(got, len(chunks), n); err != nil {
		t.Errorf("CheckMatched: %v", err)
	}
	hits, err := vec.Search(ctx, []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].Ordinal != 1 {
		t.Errorf("Search = %+v", hits)
	}
	vectors, err := vec.Vectors(ctx)
	if err != nil || len(vectors) != 3 || vectors[2][1] != 3 {
		t.Errorf("Vectors() = %v, %v", vectors, err)
	}
}

func TestChunkGapIsMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := Create(filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.InsertChunks(ctx, testChunks()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec("DELETE FROM chunks WHERE ordinal = 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Chunks(ctx); !errors.Is(err, ErrIndexChunkMismatch) {
		t.Errorf("Chunks() err = %v, want ErrIndexChunkMismatch", err)
	}
}

func TestCheckMatched(t *testing.T) {
	m := Meta{ChunkCount: 3}
	if err := CheckMatched(m, 3, 3); err != nil {
		t.Errorf("matched pair rejected: %v", err)
	}
	if err := CheckMatched(m, 3, 2); !errors.Is(err, ErrIndexChunkMismatch) {
		t.Errorf("short index err = %v", err)
	}
	if err := CheckMatched(m, 2, 2); !errors.Is(err, ErrIndexChunkMismatch) {
		t.Errorf("short chunks err = %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.db")); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("err = %v, want ErrNoArtifact", err)
	}
}

func TestCorpusHash(t *testing.T) {
	if CorpusHash("ab", "c") == CorpusHash("a", "bc") {
		t.Error("hash ignores text boundaries")
	}
	if len(CorpusHash("x")) != 64 {
		t.Errorf("hash length = %d", len(CorpusHash("x")))
	}
}
