// Package canon holds the closed book vocabulary and the canonical form of
// book names used throughout parsing, storage and lookup.
package canon

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Books is the fixed vocabulary in canonical form, in canonical order.
var Books = []string{
	"genesis", "exodus", "leviticus", "numbers", "deuteronomy",
	"joshua", "judges", "ruth", "1 samuel", "2 samuel",
	"1 kings", "2 kings", "1 chronicles", "2 chronicles",
	"ezra", "nehemiah", "esther", "job", "psalms", "proverbs",
	"ecclesiastes", "song of solomon", "isaiah", "jeremiah",
	"lamentations", "ezekiel", "daniel", "hosea", "joel", "amos",
	"obadiah", "jonah", "micah", "nahum", "habakkuk", "zephaniah",
	"haggai", "zechariah", "malachi", "matthew", "mark", "luke",
	"john", "acts", "romans", "1 corinthians", "2 corinthians",
	"galatians", "ephesians", "philippians", "colossians",
	"1 thessalonians", "2 thessalonians", "1 timothy",
	"2 timothy", "titus", "philemon", "hebrews", "james",
	"1 peter", "2 peter", "1 john", "2 john", "3 john",
	"jude", "revelation",
}

// Alias maps an accepted spelling onto a vocabulary name.
type Alias struct {
	Name string
	Book string
}

var (
	bookSet = func() map[string]struct{} {
		m := make(map[string]struct{}, len(Books))
		for _, b := range Books {
			m[b] = struct{}{}
		}
		return m
	}()

	honorifics = []string{"the gospel according to", "st.", "saint"}
)

// Canonicalize lowercases and trims a book name, strips leading honorifics
// and collapses "psalm" to "psalms". Distinct inputs may share a canonical
// form.
func Canonicalize(name string) string {
	book := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	for stripped := true; stripped; {
		stripped = false
		for _, h := range honorifics {
			if strings.HasPrefix(book, h) {
				book = strings.TrimSpace(strings.TrimPrefix(book, h))
				stripped = true
			}
		}
	}
	if book == "psalm" {
		return "psalms"
	}
	return book
}

// Lookup returns the vocabulary name a raw heading refers to.
func Lookup(name string) (string, bool) {
	book := Canonicalize(name)
	_, ok := bookSet[book]
	return book, ok
}

// IsBook reports whether a canonical name is part of the vocabulary.
func IsBook(book string) bool {
	_, ok := bookSet[book]
	return ok
}

// Title renders a canonical name for display, e.g. "1 samuel" -> "1 Samuel".
func Title(book string) string {
	// Casers keep state and must not be shared between goroutines.
	return cases.Title(language.English).String(book)
}

// DetectionOrder returns the names a question is scanned for, vocabulary
// plus aliases, longest first so "1 john" is tried before "john". The order
// is stable across calls.
func DetectionOrder() []Alias {
	out := make([]Alias, 0, len(Books)+1)
	for _, b := range Books {
		out = append(out, Alias{Name: b, Book: b})
	}
	out = append(out, Alias{Name: "psalm", Book: "psalms"})
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Name) > len(out[j].Name) })
	return out
}
