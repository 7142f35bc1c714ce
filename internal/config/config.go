package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// CorpusConfig lists the source documents. Entries may be globs.
type CorpusConfig struct {
	Scripture  []string `yaml:"scripture"`
	Commentary []string `yaml:"commentary,omitempty"`
}

// ArtifactsConfig says where built artifacts live.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkerConfig configures how documents are split into chunks. Size and
// overlap are characters for "size" and sentences for "sentence".
type ChunkerConfig struct {
	Type    string `yaml:"type"` // record, size or sentence
	Size    int    `yaml:"size,omitempty"`
	Overlap int    `yaml:"overlap,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiEmbedderConfig configures the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"` // tfidf, openai, ollama, gemini
	MaxFeatures int                   `yaml:"max_features,omitempty"`
	Workers     int                   `yaml:"workers"`
	BatchSize   int                   `yaml:"batch_size"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini      *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr                 string `yaml:"addr"`
	APIKeyEnv            string `yaml:"api_key_env"`
	Collection           string `yaml:"collection"`
	CommentaryCollection string `yaml:"commentary_collection"`
}

// IndexConfig selects the similarity index backend and metric.
type IndexConfig struct {
	Backend string        `yaml:"backend"` // flat, sqlitevec or qdrant
	Metric  string        `yaml:"metric"`  // ip or l2
	Qdrant  *QdrantConfig `yaml:"qdrant,omitempty"`
}

// maxTopK is the largest k sqlite-vec answers in one KNN query.
const maxTopK = 4096

// RetrievalConfig controls how much context is retrieved.
type RetrievalConfig struct {
	TopK           int `yaml:"top_k"`
	CommentaryTopK int `yaml:"commentary_top_k"`
}

// LLMConfig configures the commentary generator.
type LLMConfig struct {
	Provider    string `yaml:"provider"` // gemini, openai, groq, ollama, custom, none
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxSessions int    `yaml:"max_sessions"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log               LogConfig       `yaml:"log"`
	Corpus            CorpusConfig    `yaml:"corpus"`
	Artifacts         ArtifactsConfig `yaml:"artifacts"`
	Chunker           ChunkerConfig   `yaml:"chunker"`
	CommentaryChunker ChunkerConfig   `yaml:"commentary_chunker"`
	Embedder          EmbedderConfig  `yaml:"embedder"`
	Index             IndexConfig     `yaml:"index"`
	Retrieval         RetrievalConfig `yaml:"retrieval"`
	LLM               LLMConfig       `yaml:"llm"`
	Server            ServerConfig    `yaml:"server"`
}

// ScripturePath is the scripture artifact file.
func (c *AppConfig) ScripturePath() string { return filepath.Join(c.Artifacts.Dir, "scripture.db") }

// CommentaryPath is the commentary artifact file.
func (c *AppConfig) CommentaryPath() string { return filepath.Join(c.Artifacts.Dir, "commentary.db") }

// LLMTimeout returns the generation timeout.
func (c *AppConfig) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/biblerag/config.yaml.
// If neither exists, it writes defaults to ~/.config/biblerag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects combinations that cannot work.
func (c *AppConfig) Validate() error {
	switch c.Chunker.Type {
	case "record", "size", "sentence":
	default:
		return fmt.Errorf("chunker.type %q: want record, size or sentence", c.Chunker.Type)
	}
	switch c.CommentaryChunker.Type {
	case "size", "sentence":
	default:
		return fmt.Errorf("commentary_chunker.type %q: want size or sentence", c.CommentaryChunker.Type)
	}
	switch c.Embedder.Type {
	case "tfidf", "openai", "ollama", "gemini":
	default:
		return fmt.Errorf("embedder.type %q: want tfidf, openai, ollama or gemini", c.Embedder.Type)
	}
	switch c.Index.Backend {
	case "flat", "sqlitevec":
	case "qdrant":
		if c.Index.Qdrant == nil || c.Index.Qdrant.Collection == "" {
			return errors.New("index.qdrant.collection is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("index.backend %q: want flat, sqlitevec or qdrant", c.Index.Backend)
	}
	switch c.Index.Metric {
	case "ip", "l2":
	default:
		return fmt.Errorf("index.metric %q: want ip or l2", c.Index.Metric)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > maxTopK {
		return fmt.Errorf("retrieval.top_k %d: want 1..%d", c.Retrieval.TopK, maxTopK)
	}
	if c.Retrieval.CommentaryTopK < 1 || c.Retrieval.CommentaryTopK > maxTopK {
		return fmt.Errorf("retrieval.commentary_top_k %d: want 1..%d", c.Retrieval.CommentaryTopK, maxTopK)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "biblerag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Log:               LogConfig{Level: "info", Format: "text"},
		Corpus:            CorpusConfig{Scripture: []string{"data/bible.pdf"}},
		Artifacts:         ArtifactsConfig{Dir: "artifacts"},
		Chunker:           ChunkerConfig{Type: "record"},
		CommentaryChunker: ChunkerConfig{Type: "sentence", Size: 5, Overlap: 1},
		Embedder:          EmbedderConfig{Type: "tfidf", MaxFeatures: 4096, Workers: 4, BatchSize: 256},
		Index:             IndexConfig{Backend: "sqlitevec", Metric: "ip"},
		Retrieval:         RetrievalConfig{TopK: 7, CommentaryTopK: 3},
		LLM:               LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash", APIKeyEnv: "GEMINI_API_KEY", TimeoutSecs: 60},
		Server:            ServerConfig{Addr: ":8080", MaxSessions: 1000},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = def.Artifacts.Dir
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = def.Chunker.Type
	}
	if cfg.Chunker.Type == "size" && cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Chunker.Type == "sentence" && cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 5
	}
	if cfg.CommentaryChunker.Type == "" {
		cfg.CommentaryChunker = def.CommentaryChunker
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Workers == 0 {
		cfg.Embedder.Workers = def.Embedder.Workers
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if cfg.Embedder.Type == "tfidf" && cfg.Embedder.MaxFeatures == 0 {
		cfg.Embedder.MaxFeatures = def.Embedder.MaxFeatures
	}
	if cfg.Embedder.Type == "openai" || cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" && cfg.Embedder.Type == "openai" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
	}
	if cfg.Embedder.Type == "gemini" && cfg.Embedder.Gemini == nil {
		cfg.Embedder.Gemini = &GeminiEmbedderConfig{APIKeyEnv: "GEMINI_API_KEY", Model: "text-embedding-004"}
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = def.Index.Metric
	}
	if q := cfg.Index.Qdrant; q != nil {
		if q.Addr == "" {
			q.Addr = "localhost:6334"
		}
		if q.CommentaryCollection == "" && q.Collection != "" {
			q.CommentaryCollection = q.Collection + "_commentary"
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.CommentaryTopK == 0 {
		cfg.Retrieval.CommentaryTopK = def.Retrieval.CommentaryTopK
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM = def.LLM
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.MaxSessions <= 0 {
		cfg.Server.MaxSessions = def.Server.MaxSessions
	}
}
