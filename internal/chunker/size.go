package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"biblerag/internal/domain"
)

// SizeChunker cuts the whitespace-normalized document into fixed-size runs
// of characters. Consecutive chunks share overlap characters.
type SizeChunker struct {
	size    int
	overlap int
}

func NewSizeChunker(size, overlap int) *SizeChunker {
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &SizeChunker{size: size, overlap: overlap}
}

func (c *SizeChunker) Strategy() domain.Strategy { return domain.StrategySize }

func (c *SizeChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	text := strings.Join(strings.Fields(document.Content), " ")
	if text == "" {
		return nil, nil
	}
	runes := []rune(text)
	if !utf8.ValidString(text) {
		runes = []rune(strings.ToValidUTF8(text, ""))
	}
	var chunks []domain.Chunk
	step := c.size - c.overlap
	for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Text:       strings.TrimSpace(string(runes[start:end])),
			Index:      idx,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
