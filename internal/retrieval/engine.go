// Package retrieval turns a question into the context an answer is composed
// from. An explicit book and chapter reference is served exactly; anything
// else goes through the similarity index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"biblerag/internal/domain"
	"biblerag/internal/embedding"
	"biblerag/internal/index"
	"biblerag/internal/locator"
	"biblerag/internal/store"
)

// ErrOrdinalOutOfRange means the index returned a position the chunk
// sequence does not have.
var ErrOrdinalOutOfRange = errors.New("biblerag: index ordinal out of range")

// Method records which path produced a result.
type Method string

const (
	MethodStructured Method = "structured"
	MethodSemantic   Method = "semantic"
	MethodLexical    Method = "lexical"
	MethodNone       Method = "none"
)

// Collection is one loaded artifact: the chunk sequence with the index and
// embedder it was built with.
type Collection struct {
	Name     string
	Embedder domain.Embedder
	Index    index.Storage
	Chunks   []domain.Chunk
	Meta     store.Meta
}

// Result is the context retrieved for one question.
type Result struct {
	Ref        domain.Ref
	Exact      bool
	Method     Method
	Scripture  []string
	Commentary []string
}

type Options struct {
	TopK           int
	CommentaryTopK int
}

// Engine is safe for concurrent use; collections are read-only once loaded.
type Engine struct {
	scripture  *Collection
	commentary *Collection
	locator    *locator.Locator
	opts       Options
}

// NewEngine builds an engine. commentary may be nil. Exact chapter lookup
// is only enabled when scripture was built with the record strategy.
func NewEngine(scripture, commentary *Collection, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 7
	}
	if opts.CommentaryTopK <= 0 {
		opts.CommentaryTopK = 3
	}
	e := &Engine{scripture: scripture, commentary: commentary, opts: opts}
	if scripture != nil && scripture.Meta.Strategy == domain.StrategyRecord {
		e.locator = locator.New(scripture.Chunks)
	}
	return e
}

// Structured reports whether exact book/chapter lookup is available.
func (e *Engine) Structured() bool { return e.locator != nil }

// Retrieve tries the exact path first and falls back to semantic search.
// Commentary is only searched in commentary mode.
func (e *Engine) Retrieve(ctx context.Context, question string, mode domain.Mode) (Result, error) {
	res := Result{Method: MethodNone}
	if e.locator != nil {
		if ref, ok := locator.Detect(question); ok {
			res.Ref = ref
			res.Exact = true
			res.Method = MethodStructured
			res.Scripture = e.locator.GetChapter(ref)
			slog.Debug("retrieval: structured match", "ref", ref.String(), "verses", len(res.Scripture))
		}
	}
	if !res.Exact && e.scripture != nil {
		hits, method, err := e.search(ctx, e.scripture, question, e.opts.TopK)
		if err != nil {
			return res, fmt.Errorf("scripture search: %w", err)
		}
		res.Method = method
		res.Scripture = texts(hits)
	}
	if mode == domain.ModeScriptureWithCommentary && e.commentary != nil {
		hits, _, err := e.search(ctx, e.commentary, question, e.opts.CommentaryTopK)
		if err != nil {
			slog.Warn("retrieval: commentary search failed", "err", err)
		} else {
			res.Commentary = texts(hits)
		}
	}
	return res, nil
}

// SemanticSearch returns up to k chunks of c nearest to query. An empty
// collection yields no results and no error.
func (e *Engine) SemanticSearch(ctx context.Context, c *Collection, query string, k int) ([]domain.SearchResult, error) {
	hits, _, err := e.search(ctx, c, query, k)
	return hits, err
}

func (e *Engine) search(ctx context.Context, c *Collection, query string, k int) ([]domain.SearchResult, Method, error) {
	if len(c.Chunks) == 0 {
		return nil, MethodSemantic, nil
	}
	vec, err := c.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, MethodSemantic, fmt.Errorf("embedding query: %w", err)
	}
	// Detect zero vector (no known tokens)
	if embedding.IsZero(vec) {
		return lexicalSearch(c.Chunks, query, k), MethodLexical, nil
	}
	if len(vec) != c.Meta.Dimension {
		return nil, MethodSemantic, fmt.Errorf("%w: query %d, index %d", index.ErrDimensionMismatch, len(vec), c.Meta.Dimension)
	}
	if c.Meta.Normalized {
		vec = embedding.Normalize(vec)
	}
	hits, err := c.Index.Search(ctx, vec, k)
	if err != nil {
		return nil, MethodSemantic, err
	}
	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Ordinal < 0 || h.Ordinal >= len(c.Chunks) {
			return nil, MethodSemantic, fmt.Errorf("%w: %d of %d", ErrOrdinalOutOfRange, h.Ordinal, len(c.Chunks))
		}
		out = append(out, domain.SearchResult{Chunk: c.Chunks[h.Ordinal], Distance: h.Distance})
	}
	return out, MethodSemantic, nil
}

func texts(results []domain.SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Chunk.Text)
	}
	return out
}
