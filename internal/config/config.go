package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultChunkSize       = 80000 // characters, ~40k tokens
	defaultChunkOverlap    = 4000  // characters
	defaultMaxImageSize    = 2048  // pixels per side
	defaultMaxOutputTokens = 1000
	defaultCheckpointEvery = 10
	defaultModel           = "claude-haiku-4"
	defaultProvider        = "anthropic"
	defaultOllamaURL       = "http://localhost:11434"
	defaultHost            = "0.0.0.0"
	defaultPort            = 5000
	defaultMaxUploadMB     = 100
	defaultMaxJobs         = 4
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	StateDir   string           `yaml:"state_dir"`
	ChunkDir   string           `yaml:"chunk_dir"`
	UploadDir  string           `yaml:"upload_dir"`
	ResultsDir string           `yaml:"results_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Processing ProcessingConfig `yaml:"processing"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Index      IndexConfig      `yaml:"index"`
	Pricing    []PricingConfig  `yaml:"pricing"`
}

type ChunkingConfig struct {
	ChunkSize      int  `yaml:"chunk_size"`
	ChunkOverlap   int  `yaml:"chunk_overlap"`
	OptimizeImages bool `yaml:"optimize_images"`
	MaxImageSize   int  `yaml:"max_image_size"`
	CacheEntries   int  `yaml:"cache_entries"`
}

type ProcessingConfig struct {
	DefaultModel    string `yaml:"default_model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
	SystemPrompt    string `yaml:"system_prompt"`
	PromptTemplate  string `yaml:"prompt_template"`
}

type LLMConfig struct {
	Provider  string            `yaml:"provider"`
	Anthropic ProviderConfig    `yaml:"anthropic"`
	OpenAI    ProviderConfig    `yaml:"openai"`
	Ollama    ProviderConfig    `yaml:"ollama"`
	ModelIDs  map[string]string `yaml:"model_ids"`
	Retry     RetryConfig       `yaml:"retry"`
}

type ProviderConfig struct {
	Key     string `yaml:"key"`
	BaseURL string `yaml:"base_url"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

type ServerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	MaxUploadMB       int64  `yaml:"max_upload_mb"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Driver  string `yaml:"driver"` // pgdriver or pq
	Debug   bool   `yaml:"debug"`
}

type IndexConfig struct {
	Enabled       bool      `yaml:"enabled"`
	Path          string    `yaml:"path"`
	Collection    string    `yaml:"collection"`
	InMemory      bool      `yaml:"in_memory"`
	EncryptionKey string    `yaml:"encryption_key"`
	Embed         LLMTarget `yaml:"embed"`
	Answer        LLMTarget `yaml:"answer"`
	TopK          int       `yaml:"top_k"`
}

// LLMTarget points at a provider and model for auxiliary calls.
type LLMTarget struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type PricingConfig struct {
	Model  string  `yaml:"model"`
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Credentials left empty are filled from the environment (and .env).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StateDir == "" {
		c.StateDir = "./processing_states"
	}
	if c.ChunkDir == "" {
		c.ChunkDir = "./chunks"
	}
	if c.UploadDir == "" {
		c.UploadDir = "./uploads"
	}
	if c.ResultsDir == "" {
		c.ResultsDir = "./results"
	}

	if c.Chunking.ChunkSize == 0 {
		c.Chunking.ChunkSize = defaultChunkSize
		if c.Chunking.ChunkOverlap == 0 {
			c.Chunking.ChunkOverlap = defaultChunkOverlap
		}
	}
	if c.Chunking.MaxImageSize == 0 {
		c.Chunking.MaxImageSize = defaultMaxImageSize
	}
	if c.Chunking.CacheEntries == 0 {
		c.Chunking.CacheEntries = 32
	}

	if c.Processing.DefaultModel == "" {
		c.Processing.DefaultModel = defaultModel
	}
	if c.Processing.MaxOutputTokens == 0 {
		c.Processing.MaxOutputTokens = defaultMaxOutputTokens
	}
	if c.Processing.CheckpointEvery == 0 {
		c.Processing.CheckpointEvery = defaultCheckpointEvery
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultProvider
	}
	if c.LLM.Ollama.BaseURL == "" {
		c.LLM.Ollama.BaseURL = defaultOllamaURL
	}
	if c.LLM.Retry.MaxRetries == 0 {
		c.LLM.Retry.MaxRetries = 3
	}
	if c.LLM.Retry.BaseDelay == 0 {
		c.LLM.Retry.BaseDelay = time.Second
	}
	if c.LLM.Retry.MaxDelay == 0 {
		c.LLM.Retry.MaxDelay = 30 * time.Second
	}

	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Server.MaxConcurrentJobs == 0 {
		c.Server.MaxConcurrentJobs = defaultMaxJobs
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}

	if c.Index.Path == "" {
		c.Index.Path = "./chromemdb"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "chunk_results"
	}
	if c.Index.TopK == 0 {
		c.Index.TopK = 5
	}
	if c.Index.Embed.Provider == "" {
		c.Index.Embed.Provider = "ollama"
	}
	if c.Index.Embed.Model == "" {
		c.Index.Embed.Model = "nomic-embed-text"
	}
}

func (c *Config) applyEnv() {
	if c.LLM.Anthropic.Key == "" {
		c.LLM.Anthropic.Key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.LLM.OpenAI.Key == "" {
		c.LLM.OpenAI.Key = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.LLM.Ollama.BaseURL = v
	}
	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}
}

// Validate checks values that would break chunking or serving.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be in [0, chunk_size=%d)",
			ErrInvalidConfig, c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Processing.CheckpointEvery < 1 {
		return fmt.Errorf("%w: checkpoint_every must be >= 1", ErrInvalidConfig)
	}
	for _, p := range c.Pricing {
		if p.Model == "" || p.Input < 0 || p.Output < 0 {
			return fmt.Errorf("%w: bad pricing entry %+v", ErrInvalidConfig, p)
		}
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required when database is enabled", ErrInvalidConfig)
	}
	return nil
}

// APIKey returns the configured credential for a provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.LLM.Anthropic.Key
	case "openai":
		return c.LLM.OpenAI.Key
	}
	return ""
}
