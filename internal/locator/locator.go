// Package locator answers questions that name a book and chapter directly,
// without going through the similarity index.
package locator

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"biblerag/internal/canon"
	"biblerag/internal/chunker"
	"biblerag/internal/domain"
)

type pattern struct {
	book string
	re   *regexp.Regexp
}

var patterns = func() []pattern {
	order := canon.DetectionOrder()
	out := make([]pattern, 0, len(order))
	for _, a := range order {
		out = append(out, pattern{
			book: a.Book,
			re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(a.Name) + `\s+(\d+)\b`),
		})
	}
	return out
}()

// Detect finds the first "<book> <chapter>" reference in question. Longer
// names are tried first so "1 John 4" is not read as "John 4".
func Detect(question string) (domain.Ref, bool) {
	q := strings.ToLower(question)
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(q, -1) {
			chapter, err := strconv.Atoi(m[1])
			if err != nil || chapter <= 0 {
				continue
			}
			return domain.Ref{Book: p.book, Chapter: chapter}, true
		}
	}
	return domain.Ref{}, false
}

// Locator serves exact chapter lookups over a record-strategy chunk sequence.
type Locator struct {
	chunks []domain.Chunk
}

func New(chunks []domain.Chunk) *Locator { return &Locator{chunks: chunks} }

// GetChapter returns every verse of ref formatted as "Book C:V text", in
// chunk order. Malformed chunks are skipped.
func (l *Locator) GetChapter(ref domain.Ref) []string {
	var out []string
	skipped := 0
	for _, c := range l.chunks {
		r, err := chunker.Deserialize(c.Text)
		if err != nil {
			skipped++
			continue
		}
		if canon.Canonicalize(r.Book) != ref.Book || r.Chapter != ref.Chapter {
			continue
		}
		out = append(out, Format(r))
	}
	if skipped > 0 {
		slog.Debug("locator: skipped malformed chunks", "count", skipped, "ref", ref.String())
	}
	return out
}

// Format renders a verse for display.
func Format(r domain.VerseRecord) string {
	return fmt.Sprintf("%s %d:%d %s", canon.Title(r.Book), r.Chapter, r.Verse, r.Text)
}
