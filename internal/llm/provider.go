// Package llm provides the text generation capability used for commentary.
// Generators make one attempt per call; failures are classified as rate
// limited or unavailable and left to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"biblerag/internal/domain"
)

var (
	// ErrRateLimited means the provider rejected the call for quota or rate
	// reasons.
	ErrRateLimited = errors.New("biblerag: llm rate limited")
	// ErrUnavailable covers every other generation failure.
	ErrUnavailable = errors.New("biblerag: llm unavailable")
)

// Config configures an LLM provider.
type Config struct {
	Provider  string // gemini, openai, groq, ollama, custom, none
	Model     string
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewGenerator creates the configured generator. Provider "none" or ""
// returns a nil generator and no error: commentary is disabled.
func NewGenerator(ctx context.Context, cfg Config) (domain.Generator, error) {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "gemini":
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		g, err := NewGemini(ctx, key, cfg.Model)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		return newCompat(cfg, key, "https://api.openai.com/v1", "gpt-4o-mini", true)
	case "groq":
		return newCompat(cfg, key, "https://api.groq.com/openai/v1", "llama-3.1-8b-instant", true)
	case "ollama":
		return newCompat(cfg, key, "http://localhost:11434/v1", "llama3.1", false)
	case "custom":
		if cfg.BaseURL == "" {
			return nil, errors.New("custom llm provider requires base_url")
		}
		return newCompat(cfg, key, "", "", false)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func newCompat(cfg Config, key, defaultURL, defaultModel string, needKey bool) (domain.Generator, error) {
	if needKey && key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return NewOpenAICompat(cfg.BaseURL, key, cfg.Model, cfg.Timeout), nil
}
