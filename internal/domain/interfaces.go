package domain

import (
	"context"
	"fmt"
	"strings"
)

// VerseRecord is a single parsed verse. Book is the canonical lowercase name.
type VerseRecord struct {
	Book    string
	Chapter int
	Verse   int
	Text    string
}

// Chunk is a retrievable unit of text. Index is its ordinal in the chunk
// sequence the similarity index was built from.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with its distance to the query.
// Lower distance is closer for every metric.
type SearchResult struct {
	Chunk    Chunk
	Distance float64
}

// Ref is an explicit book+chapter reference found in a question.
type Ref struct {
	Book    string
	Chapter int
}

func (r Ref) String() string { return fmt.Sprintf("%s %d", r.Book, r.Chapter) }

// Strategy names the chunking strategy an index was built with.
type Strategy string

const (
	StrategyRecord   Strategy = "record"
	StrategySize     Strategy = "size"
	StrategySentence Strategy = "sentence"
)

// Mode is the per-request answer mode.
type Mode int

const (
	ModeScriptureOnly Mode = iota
	ModeScriptureWithCommentary
)

func (m Mode) String() string {
	switch m {
	case ModeScriptureWithCommentary:
		return "commentary"
	default:
		return "scripture"
	}
}

// ParseMode accepts the names used by the CLI, config and HTTP API.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scripture", "scripture-only", "scripture_only":
		return ModeScriptureOnly, nil
	case "commentary", "scripture-with-commentary", "scripture_with_commentary", "ai":
		return ModeScriptureWithCommentary, nil
	default:
		return ModeScriptureOnly, fmt.Errorf("unknown mode %q", s)
	}
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits a document into chunks suitable for retrieval indexing.
type Chunker interface {
	Strategy() Strategy
	Chunk(document Document) ([]Chunk, error)
}

// Document represents a single source text loaded into the system.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Generator is the LLM capability used by the answer composer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
