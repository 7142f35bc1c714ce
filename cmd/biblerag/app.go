package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"biblerag/internal/cache"
	"biblerag/internal/chunker"
	"biblerag/internal/composer"
	"biblerag/internal/config"
	"biblerag/internal/domain"
	"biblerag/internal/embedding"
	"biblerag/internal/index"
	"biblerag/internal/index/qdrant"
	"biblerag/internal/llm"
	"biblerag/internal/retrieval"
	"biblerag/internal/service"
	"biblerag/internal/session"
)

var errNoScripture = errors.New("no scripture corpus configured")

// corpus pairs one configured source set with its artifact.
type corpus struct {
	name       string
	paths      []string
	artifact   string
	chunker    config.ChunkerConfig
	collection string
}

func corpora(cfg *config.AppConfig) []corpus {
	out := []corpus{{
		name:     "scripture",
		paths:    cfg.Corpus.Scripture,
		artifact: cfg.ScripturePath(),
		chunker:  cfg.Chunker,
	}}
	if len(cfg.Corpus.Commentary) > 0 {
		out = append(out, corpus{
			name:     "commentary",
			paths:    cfg.Corpus.Commentary,
			artifact: cfg.CommentaryPath(),
			chunker:  cfg.CommentaryChunker,
		})
	}
	if q := cfg.Index.Qdrant; q != nil {
		out[0].collection = q.Collection
		if len(out) > 1 {
			out[1].collection = q.CommentaryCollection
		}
	}
	return out
}

func newEmbedder(ctx context.Context, cfg *config.AppConfig) (domain.Embedder, error) {
	e := cfg.Embedder
	opts := embedding.Options{Type: e.Type, MaxFeatures: e.MaxFeatures}
	switch {
	case e.OpenAI != nil && (e.Type == "openai" || e.Type == "ollama"):
		opts.BaseURL = e.OpenAI.BaseURL
		opts.APIKeyEnv = e.OpenAI.APIKeyEnv
		opts.Model = e.OpenAI.Model
		opts.Timeout = time.Duration(e.OpenAI.TimeoutSecs) * time.Second
		opts.MaxRetries = e.OpenAI.MaxRetries
	case e.Gemini != nil && e.Type == "gemini":
		opts.APIKeyEnv = e.Gemini.APIKeyEnv
		opts.Model = e.Gemini.Model
	}
	return embedding.New(ctx, opts)
}

// newRemote returns the qdrant index for c, or nil when another backend is
// configured.
func newRemote(cfg *config.AppConfig, c corpus, metric index.Metric) (*qdrant.Storage, error) {
	if cfg.Index.Backend != "qdrant" {
		return nil, nil
	}
	q := cfg.Index.Qdrant
	key := ""
	if q.APIKeyEnv != "" {
		key = os.Getenv(q.APIKeyEnv)
	}
	return qdrant.NewStorage(qdrant.Config{Addr: q.Addr, APIKey: key, Collection: c.collection}, metric)
}

func ingest(ctx context.Context, cfg *config.AppConfig) (map[string]service.BuildReport, error) {
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	if len(cfg.Corpus.Scripture) == 0 {
		return nil, errNoScripture
	}
	reports := make(map[string]service.BuildReport)
	for _, c := range corpora(cfg) {
		emb, err := newEmbedder(ctx, cfg)
		if err != nil {
			return reports, err
		}
		remote, err := newRemote(cfg, c, metric)
		if err != nil {
			return reports, err
		}
		opts := service.BuildOptions{
			Paths:        c.paths,
			ArtifactPath: c.artifact,
			Chunker: chunker.Options{
				Strategy: domain.Strategy(c.chunker.Type),
				Size:     c.chunker.Size,
				Overlap:  c.chunker.Overlap,
			},
			Embedder:   emb,
			Metric:     metric,
			Workers:    cfg.Embedder.Workers,
			BatchSize:  cfg.Embedder.BatchSize,
			Backend:    cfg.Index.Backend,
			Collection: c.collection,
		}
		if remote != nil {
			opts.Remote = remote
		}
		slog.Info("ingest: building", "corpus", c.name, "paths", c.paths, "artifact", c.artifact)
		rep, err := service.Build(ctx, opts)
		if remote != nil {
			remote.Close()
		}
		if err != nil {
			return reports, fmt.Errorf("%s: %w", c.name, err)
		}
		reports[c.name] = rep
	}
	return reports, nil
}

// app is a loaded service and everything that must be closed with it.
type app struct {
	svc     *service.RAGService
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("app: close failed", "err", err)
		}
	}
}

func open(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	metric, err := index.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	a := &app{}
	collections := make(map[string]*retrieval.Collection)
	for _, c := range corpora(cfg) {
		emb, err := newEmbedder(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts := service.LoadOptions{Name: c.name, Path: c.artifact, Embedder: emb, Backend: cfg.Index.Backend}
		remote, err := newRemote(cfg, c, metric)
		if err != nil {
			a.Close()
			return nil, err
		}
		if remote != nil {
			opts.Remote = remote
			a.closers = append(a.closers, remote.Close)
		}
		art, err := service.Load(ctx, opts)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, art.Close)
		collections[c.name] = art.Collection
	}

	gen, err := llm.NewGenerator(ctx, llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Timeout:   cfg.LLMTimeout(),
	})
	if err != nil {
		// Commentary degrades to scripture only; startup does not fail.
		slog.Warn("app: llm disabled", "provider", cfg.LLM.Provider, "err", err)
		gen = nil
	}

	eng := retrieval.NewEngine(collections["scripture"], collections["commentary"], retrieval.Options{
		TopK:           cfg.Retrieval.TopK,
		CommentaryTopK: cfg.Retrieval.CommentaryTopK,
	})
	if !eng.Structured() {
		slog.Info("app: exact chapter lookup disabled", "strategy", collections["scripture"].Meta.Strategy)
	}
	a.svc = service.NewRAGService(eng, composer.New(gen, cache.New()), session.NewStore(cfg.Server.MaxSessions))
	return a, nil
}
