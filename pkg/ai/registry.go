package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelFactory 根据配置创建模型实例。
type ModelFactory func(ctx context.Context, cfg ModelConfig) (llms.Model, error)

// EmbedderFactory 根据配置创建嵌入器。
type EmbedderFactory func(ctx context.Context, cfg EmbeddingConfig) (embeddings.Embedder, error)

// Registry 按名称管理模型实例与嵌入器，首次使用时创建并缓存。
type Registry struct {
	config *Config
	logger zerolog.Logger

	newModel    ModelFactory
	newEmbedder EmbedderFactory

	mu       sync.Mutex
	models   map[string]llms.Model
	embedder embeddings.Embedder
}

// RegistryOption 配置 Registry。
type RegistryOption func(*Registry)

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithModelFactory 替换默认的模型创建逻辑（测试或自定义供应商）。
func WithModelFactory(f ModelFactory) RegistryOption {
	return func(r *Registry) {
		r.newModel = f
	}
}

// WithEmbedderFactory 替换默认的嵌入器创建逻辑。
func WithEmbedderFactory(f EmbedderFactory) RegistryOption {
	return func(r *Registry) {
		r.newEmbedder = f
	}
}

// NewRegistry 创建模型注册表。
func NewRegistry(config *Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		config:      config,
		logger:      zerolog.Nop(),
		newModel:    NewModel,
		newEmbedder: NewEmbedder,
		models:      make(map[string]llms.Model),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Config 返回注册表使用的配置。
func (r *Registry) Config() *Config {
	return r.config
}

// Model 获取模型实例，name 为空时使用 default_model。
//
//	Check Cache -> (Hit) -> Return
//	     |
//	   (Miss)
//	     v
//	Load Config -> Init Provider (OpenAI/Google/Anthropic) -> Update Cache -> Return
func (r *Registry) Model(ctx context.Context, name string) (llms.Model, error) {
	if name == "" {
		name = r.config.DefaultModel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if model, ok := r.models[name]; ok {
		return model, nil
	}

	cfg, err := r.config.Model(name)
	if err != nil {
		return nil, err
	}
	model, err := r.newModel(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	r.logger.Debug().
		Str("model", name).
		Str("provider", cfg.Provider).
		Str("model_name", cfg.ModelName).
		Msg("model initialized")
	r.models[name] = model
	return model, nil
}

// Embedder 获取嵌入器，首次调用时创建。
func (r *Registry) Embedder(ctx context.Context) (embeddings.Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.embedder != nil {
		return r.embedder, nil
	}
	e, err := r.newEmbedder(ctx, r.config.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	r.logger.Debug().
		Str("provider", r.config.Embedding.Provider).
		Str("model_name", r.config.Embedding.ModelName).
		Msg("embedder initialized")
	r.embedder = e
	return e, nil
}

// resolveAPIKey 解析 API 密钥。
// 如果密钥以 "env:" 开头，则从环境变量中获取实际值。
func resolveAPIKey(key string) string {
	if strings.HasPrefix(key, "env:") {
		return os.Getenv(strings.TrimPrefix(key, "env:"))
	}
	return key
}

// NewModel 是默认的 ModelFactory。
func NewModel(ctx context.Context, cfg ModelConfig) (llms.Model, error) {
	apiKey := resolveAPIKey(cfg.APIKey)

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "google":
		opts := []googleai.Option{
			googleai.WithAPIKey(apiKey),
			googleai.WithDefaultModel(cfg.ModelName),
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, googleai.WithDefaultMaxTokens(cfg.MaxTokens))
		}
		if cfg.Temperature > 0 {
			opts = append(opts, googleai.WithDefaultTemperature(cfg.Temperature))
		}
		return googleai.New(ctx, opts...)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// NewEmbedder 是默认的 EmbedderFactory。Anthropic 不提供嵌入接口。
func NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (embeddings.Embedder, error) {
	apiKey := resolveAPIKey(cfg.APIKey)

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case "openai", "":
		opts := []openai.Option{openai.WithToken(apiKey)}
		if cfg.ModelName != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.ModelName))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		client = llm
	case "google":
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if cfg.ModelName != "" {
			opts = append(opts, googleai.WithDefaultEmbeddingModel(cfg.ModelName))
		}
		llm, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		client = llm
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return embeddings.NewEmbedder(client, embeddings.WithBatchSize(batch))
}

// CallOptions 返回模型配置对应的默认调用参数。
func (c ModelConfig) CallOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.Temperature))
	}
	return opts
}
