package chunker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"biblerag/internal/domain"
	"biblerag/internal/parser"
)

// ErrMalformedChunk is returned by Deserialize for text that is not a
// book|chapter|verse|text record.
var ErrMalformedChunk = errors.New("biblerag: malformed record chunk")

const fieldSep = "|"

// Serialize renders a verse record as one chunk text.
func Serialize(r domain.VerseRecord) string {
	return r.Book + fieldSep + strconv.Itoa(r.Chapter) + fieldSep + strconv.Itoa(r.Verse) + fieldSep + r.Text
}

// Deserialize parses a record chunk. Text may itself contain "|"; only the
// first three separators are significant.
func Deserialize(text string) (domain.VerseRecord, error) {
	parts := strings.SplitN(text, fieldSep, 4)
	if len(parts) != 4 {
		return domain.VerseRecord{}, fmt.Errorf("%w: %d fields", ErrMalformedChunk, len(parts))
	}
	chapter, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || chapter <= 0 {
		return domain.VerseRecord{}, fmt.Errorf("%w: chapter %q", ErrMalformedChunk, parts[1])
	}
	verse, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || verse <= 0 {
		return domain.VerseRecord{}, fmt.Errorf("%w: verse %q", ErrMalformedChunk, parts[2])
	}
	return domain.VerseRecord{
		Book:    parts[0],
		Chapter: chapter,
		Verse:   verse,
		Text:    parts[3],
	}, nil
}

// RecordChunker parses a document into verses and emits one chunk per verse.
type RecordChunker struct{}

func NewRecordChunker() *RecordChunker { return &RecordChunker{} }

func (c *RecordChunker) Strategy() domain.Strategy { return domain.StrategyRecord }

func (c *RecordChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	records := parser.Parse(document.Content)
	chunks := make([]domain.Chunk, 0, len(records))
	for i, r := range records {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(i),
			Text:       Serialize(r),
			Index:      i,
		})
	}
	return chunks, nil
}
