// Package composer turns retrieved context into the final answer text. It
// never returns an error: every failure becomes a fixed user-facing message
// or a scripture-only fallback.
package composer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"biblerag/internal/cache"
	"biblerag/internal/chunker"
	"biblerag/internal/domain"
	"biblerag/internal/llm"
	"biblerag/internal/locator"
)

const (
	NotFoundMessage          = "No matching scripture was found for your question."
	QuotaMessage             = "The AI quota has been reached. Please try again later or switch to Scripture Only mode."
	UnavailableNotice        = "AI explanation is unavailable right now. Showing scripture only."
	UnavailableNoDataMessage = "AI explanation is unavailable and no scripture was found for your question."
	scriptureHeader          = "Relevant scripture:"
)

// Outcome records which branch produced an answer.
type Outcome string

const (
	OutcomeScripture   Outcome = "scripture"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeGenerated   Outcome = "generated"
	OutcomeCached      Outcome = "cached"
	OutcomeQuota       Outcome = "quota"
	OutcomeUnavailable Outcome = "unavailable"
)

// Answer is the composed response.
type Answer struct {
	Text    string
	Outcome Outcome
}

// Input is everything one answer is composed from.
type Input struct {
	Question   string
	Mode       domain.Mode
	Scripture  []string
	Commentary []string
}

// Composer applies the answer fallback chain. gen may be nil, in which case
// every request is answered with scripture only.
type Composer struct {
	gen   domain.Generator
	cache *cache.ResponseCache
}

func New(gen domain.Generator, c *cache.ResponseCache) *Composer {
	if c == nil {
		c = cache.New()
	}
	return &Composer{gen: gen, cache: c}
}

// Compose produces the answer for in.
func (c *Composer) Compose(ctx context.Context, in Input) Answer {
	lines := FormatUnits(in.Scripture)
	if in.Mode == domain.ModeScriptureOnly || c.gen == nil {
		if len(lines) == 0 {
			return Answer{Text: NotFoundMessage, Outcome: OutcomeNotFound}
		}
		return Answer{Text: scriptureHeader + "\n" + strings.Join(lines, "\n"), Outcome: OutcomeScripture}
	}

	contextText := buildContext(lines, in.Commentary)
	key := cache.Key(in.Question, contextText)
	text, hit, err := c.cache.Do(ctx, key, func(ctx context.Context) (string, error) {
		return c.gen.Generate(ctx, BuildPrompt(contextText, in.Question))
	})
	switch {
	case err == nil && hit:
		return Answer{Text: text, Outcome: OutcomeCached}
	case err == nil:
		return Answer{Text: text, Outcome: OutcomeGenerated}
	case errors.Is(err, llm.ErrRateLimited):
		slog.Warn("composer: llm rate limited", "err", err)
		return Answer{Text: QuotaMessage, Outcome: OutcomeQuota}
	}
	slog.Warn("composer: llm unavailable, falling back to scripture", "err", err)
	if len(lines) == 0 {
		return Answer{Text: UnavailableNoDataMessage, Outcome: OutcomeUnavailable}
	}
	return Answer{Text: UnavailableNotice + "\n\n" + strings.Join(lines, "\n"), Outcome: OutcomeUnavailable}
}

// FormatUnits renders retrieved units as display lines. Record chunks become
// "Book C:V text"; anything else is shown as is.
func FormatUnits(units []string) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		if r, err := chunker.Deserialize(u); err == nil {
			out = append(out, locator.Format(r))
			continue
		}
		if s := strings.TrimSpace(u); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildContext(lines, commentary []string) string {
	ctx := strings.Join(lines, "\n")
	if len(commentary) > 0 {
		ctx += "\n\nCommentary:\n" + strings.Join(commentary, "\n")
	}
	return ctx
}

// BuildPrompt constrains the model to the retrieved context.
func BuildPrompt(contextText, question string) string {
	return `You are a Bible scholar. Answer the question using ONLY the context below.
Do not use outside knowledge. If the context does not contain the answer, say so.
Quote chapter and verse where possible.

Context:
` + contextText + `

Question:
` + question + `

Answer:`
}
