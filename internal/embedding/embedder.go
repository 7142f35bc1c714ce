// Package embedding builds the configured embedder and holds the vector
// helpers shared by indexing and querying.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"biblerag/internal/domain"
	"biblerag/internal/embedding/gemini"
	"biblerag/internal/embedding/openai"
	"biblerag/internal/embedding/tfidf"
)

// Stateful is implemented by embedders whose prepared state must be stored
// alongside the index, such as TF-IDF.
type Stateful interface {
	State() ([]byte, error)
	Restore(data []byte) error
}

// Options selects and configures an embedder.
type Options struct {
	Type        string // tfidf | openai | ollama | gemini
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Timeout     time.Duration
	MaxFeatures int
	MaxRetries  int
}

// New returns the embedder named by opts.Type.
func New(ctx context.Context, opts Options) (domain.Embedder, error) {
	switch opts.Type {
	case "", "tfidf":
		return tfidf.NewEmbedder(opts.MaxFeatures), nil
	case "openai", "ollama":
		cfg := openai.Config{
			BaseURL:    opts.BaseURL,
			APIKeyEnv:  opts.APIKeyEnv,
			Model:      opts.Model,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		}
		if opts.Type == "ollama" {
			if cfg.BaseURL == "" {
				cfg.BaseURL = "http://localhost:11434/v1"
			}
			if cfg.Model == "" {
				cfg.Model = "nomic-embed-text"
			}
			cfg.AllowNoKey = true
		}
		c, err := openai.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{APIKeyEnv: opts.APIKeyEnv, Model: opts.Model})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q", opts.Type)
	}
}

// Normalize scales v to unit length in place and returns it. The zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
