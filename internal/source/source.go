// Package source loads corpus documents from plain-text and PDF files.
package source

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/zeebo/blake3"

	"biblerag/internal/domain"
)

var (
	// ErrNoExtractableText is returned when a document yields no text,
	// typically an image-only or encrypted PDF.
	ErrNoExtractableText = errors.New("biblerag: no extractable text")
	// ErrNoDocuments is returned when the given paths match no supported file.
	ErrNoDocuments = errors.New("biblerag: no .txt or .pdf documents found")
)

// Load expands each path as a glob and reads every .txt and .pdf match.
// Documents are returned in path order.
func Load(paths []string) ([]domain.Document, error) {
	var files []string
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil && !strings.ContainsAny(p, "*?[") {
			matches = []string{p}
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var documents []domain.Document
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		var (
			text string
			err  error
		)
		switch strings.ToLower(filepath.Ext(f)) {
		case ".txt":
			text, err = readText(f)
		case ".pdf":
			text, err = readPDF(f)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		documents = append(documents, domain.Document{ID: documentID(f), Path: f, Content: text})
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, strings.Join(paths, ", "))
	}
	return documents, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoExtractableText, path)
	}
	return string(data), nil
}

// readPDF extracts text row by row so verse markers and book headings keep
// their own lines.
func readPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			b.WriteByte('\n')
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoExtractableText, path)
	}
	return text, nil
}

func documentID(path string) string {
	h := blake3.Sum256([]byte(path))
	return hex.EncodeToString(h[:8])
}
