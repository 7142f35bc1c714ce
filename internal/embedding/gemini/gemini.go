package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"google.golang.org/genai"
)

// Client embeds text with the Gemini embedding models.
type Client struct {
	client    *genai.Client
	model     string
	dimension atomic.Int64
}

// Config configures the Gemini embeddings client.
type Config struct {
	APIKeyEnv string
	Model     string
}

// NewClient creates an embeddings client. The key is read from APIKeyEnv,
// GEMINI_API_KEY by default.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: cfg.Model}, nil
}

func (c *Client) Name() string { return "gemini:" + c.model }

func (c *Client) Prepare(context.Context, []string) error { return nil }

func (c *Client) Dimension() int { return int(c.dimension.Load()) }

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: no embedding returned")
	}
	v := resp.Embeddings[0].Values
	c.dimension.CompareAndSwap(0, int64(len(v)))
	return v, nil
}
