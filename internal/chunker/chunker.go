// Package chunker splits documents into retrievable chunks. Exactly one
// strategy is used per index build.
package chunker

import (
	"fmt"

	"biblerag/internal/domain"
)

// Options carries the per-strategy knobs. Size and Overlap are characters
// for the size strategy and sentences for the sentence strategy.
type Options struct {
	Strategy domain.Strategy
	Size     int
	Overlap  int
}

// New returns the chunker for opts.Strategy.
func New(opts Options) (domain.Chunker, error) {
	switch opts.Strategy {
	case domain.StrategyRecord, "":
		return NewRecordChunker(), nil
	case domain.StrategySize:
		return NewSizeChunker(opts.Size, opts.Overlap), nil
	case domain.StrategySentence:
		return NewSentenceChunker(opts.Size, opts.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", opts.Strategy)
	}
}
