package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"biblerag/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Terms returns the distinct lowercase words of s.
func Terms(s string) map[string]struct{} {
	words := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Overlap counts the distinct words of text found in terms and returns the
// count with the Ochiai coefficient |A∩B| / sqrt(|A||B|).
func Overlap(terms map[string]struct{}, text string) (shared int, ochiai float64) {
	words := Terms(text)
	for w := range words {
		if _, ok := terms[w]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0, 0
	}
	return shared, float64(shared) / math.Sqrt(float64(len(terms))*float64(len(words)))
}

// lexicalSearch serves queries the embedder has no terms for. Distance is
// 1 - Ochiai; chunks sharing no word with the query are dropped.
func lexicalSearch(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}
	var out []domain.SearchResult
	for _, c := range chunks {
		if _, score := Overlap(terms, c.Text); score > 0 {
			out = append(out, domain.SearchResult{Chunk: c, Distance: 1 - score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if topK <= 0 {
		topK = 5
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
