package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai/aitest"
)

const sampleConfig = `
default_model: gpt
models:
  - name: gpt
    provider: openai
    api_key: env:IMBOTRAG_TEST_KEY
    model_name: gpt-4o-mini
    temperature: 0.2
  - name: claude
    provider: anthropic
    api_key: sk-direct
    model_name: claude-3-5-sonnet-latest
embedding:
  provider: openai
  api_key: env:IMBOTRAG_TEST_KEY
  model_name: text-embedding-3-small
retrieval:
  index_path: ./index.jsonl
history:
  max_tokens: 2000
`

func TestParseConfigAppliesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "gpt", cfg.DefaultModel)
	assert.Len(t, cfg.Models, 2)
	assert.Equal(t, DefaultK, cfg.Retrieval.K)
	assert.Equal(t, DefaultChunkSize, cfg.Retrieval.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, "distance", cfg.Retrieval.ScoreOrder)
	assert.Equal(t, DefaultBatchSize, cfg.Embedding.BatchSize)
	assert.Equal(t, 2000, cfg.History.MaxTokens)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no models", "default_model: x\n"},
		{"unknown default", "default_model: missing\nmodels:\n  - name: gpt\n    provider: openai\n"},
		{"negative k", "models:\n  - name: gpt\n    provider: openai\nretrieval:\n  k: -1\n"},
		{"overlap too large", "models:\n  - name: gpt\n    provider: openai\nretrieval:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"bad score order", "models:\n  - name: gpt\n    provider: openai\nretrieval:\n  score_order: random\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleConfig), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IMBOTRAG_TEST_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("IMBOTRAG_TEST_KEY") })

	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", resolveAPIKey(cfg.Models[0].APIKey))
	assert.Equal(t, "sk-direct", resolveAPIKey(cfg.Models[1].APIKey))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRegistryCachesModels(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		created []string
	)
	reg := NewRegistry(cfg, WithModelFactory(func(_ context.Context, mc ModelConfig) (llms.Model, error) {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, mc.Name)
		return aitest.Texts(), nil
	}))

	first, err := reg.Model(context.Background(), "")
	require.NoError(t, err)
	second, err := reg.Model(context.Background(), "gpt")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = reg.Model(context.Background(), "claude")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt", "claude"}, created)

	_, err = reg.Model(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistryEmbedderFactoryError(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	boom := errors.New("no credentials")
	calls := 0
	reg := NewRegistry(cfg, WithEmbedderFactory(func(context.Context, EmbeddingConfig) (embeddings.Embedder, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return aitest.NewHashEmbedder(8), nil
	}))

	_, err = reg.Embedder(context.Background())
	assert.ErrorIs(t, err, boom)

	e1, err := reg.Embedder(context.Background())
	require.NoError(t, err)
	e2, err := reg.Embedder(context.Background())
	require.NoError(t, err)
	assert.Same(t, e1, e2)
	assert.Equal(t, 2, calls)
}

func TestNewModelUnsupportedProvider(t *testing.T) {
	_, err := NewModel(context.Background(), ModelConfig{Provider: "ollama"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = NewEmbedder(context.Background(), EmbeddingConfig{Provider: "anthropic"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestModelConfigCallOptions(t *testing.T) {
	assert.Empty(t, ModelConfig{}.CallOptions())
	assert.Len(t, ModelConfig{MaxTokens: 100, Temperature: 0.3}.CallOptions(), 2)
}
