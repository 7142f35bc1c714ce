package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"biblerag/internal/domain"
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// SentenceChunker groups prose into windows of consecutive sentences that
// share overlap sentences with the previous window. Commentary has no verse
// markers and is chunked this way.
type SentenceChunker struct {
	size    int
	overlap int
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	return &SentenceChunker{size: sentencesPerChunk, overlap: max(overlapSentences, 0)}
}

func (c *SentenceChunker) Strategy() domain.Strategy { return domain.StrategySentence }

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sentences := splitSentences(document.Content)
	step := max(c.size-c.overlap, 1)
	var chunks []domain.Chunk
	for start := 0; start < len(sentences); start += step {
		end := min(start+c.size, len(sentences))
		n := len(chunks)
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(n),
			Text:       strings.Join(sentences[start:end], " "),
			Index:      n,
		})
		if end == len(sentences) {
			break
		}
	}
	return chunks, nil
}

// splitSentences returns whitespace-normalized sentences, keeping an
// unterminated tail as the last one.
func splitSentences(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			out = append(out, s)
		}
	}
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	add(text[last:])
	return out
}
