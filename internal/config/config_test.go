package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultChunkSize, cfg.Chunking.ChunkSize)
	assert.Equal(t, defaultChunkOverlap, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, defaultModel, cfg.Processing.DefaultModel)
	assert.Equal(t, defaultCheckpointEvery, cfg.Processing.CheckpointEvery)
	assert.Equal(t, "./processing_states", cfg.StateDir)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
state_dir: /tmp/states
chunking:
  chunk_size: 1000
  chunk_overlap: 100
processing:
  default_model: gpt-4o-mini
llm:
  provider: openai
  model_ids:
    claude-haiku-4: claude-3-5-haiku-latest
pricing:
  - model: local-llama
    input: 0
    output: 0
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/states", cfg.StateDir)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "gpt-4o-mini", cfg.Processing.DefaultModel)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.LLM.ModelIDs["claude-haiku-4"])
	require.Len(t, cfg.Pricing, 1)
	assert.Equal(t, "local-llama", cfg.Pricing[0].Model)
}

func TestLoadConfig_RejectsOverlapNotBelowSize(t *testing.T) {
	path := writeConfig(t, `
chunking:
  chunk_size: 100
  chunk_overlap: 100
`)
	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := writeConfig(t, "chunking: [")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.APIKey("anthropic"))
	assert.Empty(t, cfg.APIKey("openai"))
	assert.Empty(t, cfg.APIKey("ollama"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero overlap", mutate: func(c *Config) { c.Chunking.ChunkOverlap = 0 }},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.ChunkOverlap = -1 }, wantErr: true},
		{name: "overlap above size", mutate: func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize + 1 }, wantErr: true},
		{name: "zero checkpoint", mutate: func(c *Config) { c.Processing.CheckpointEvery = 0 }, wantErr: true},
		{name: "negative price", mutate: func(c *Config) {
			c.Pricing = []PricingConfig{{Model: "x", Input: -1}}
		}, wantErr: true},
		{name: "database without dsn", mutate: func(c *Config) {
			c.Database.Enabled = true
			c.Database.DSN = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
