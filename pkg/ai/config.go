package ai

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 默认值与原型脚本保持一致。
const (
	DefaultK            = 6
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultBatchSize    = 64
	DefaultLogLevel     = "info"
)

// ModelConfig defines the configuration for a single LLM.
type ModelConfig struct {
	Name        string  `json:"name" yaml:"name"`                             // e.g., "gpt-4o-mini", "gemini"
	Provider    string  `json:"provider" yaml:"provider"`                     // "openai", "google", "anthropic"
	APIKey      string  `json:"api_key" yaml:"api_key"`                       // Environment variable reference or direct key
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"` // Optional: for custom endpoints
	ModelName   string  `json:"model_name" yaml:"model_name"`                 // The specific model ID
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`                 // Max output tokens
	Temperature float64 `json:"temperature" yaml:"temperature"`               // Creativity
}

// EmbeddingConfig 描述向量化所用的服务。
type EmbeddingConfig struct {
	Provider  string `json:"provider" yaml:"provider"`
	APIKey    string `json:"api_key" yaml:"api_key"`
	ModelName string `json:"model_name" yaml:"model_name"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
}

// RetrievalConfig 控制切分与检索。
type RetrievalConfig struct {
	K            int    `json:"k" yaml:"k"`
	ChunkSize    int    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" yaml:"chunk_overlap"`
	IndexPath    string `json:"index_path,omitempty" yaml:"index_path,omitempty"`
	ScoreOrder   string `json:"score_order,omitempty" yaml:"score_order,omitempty"` // "distance" | "similarity"
}

// HistoryConfig 控制送入模型的历史窗口，MaxTokens 为 0 表示不截取。
type HistoryConfig struct {
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`
}

// Config holds the global configuration.
type Config struct {
	DefaultModel string          `json:"default_model" yaml:"default_model"`
	Models       []ModelConfig   `json:"models" yaml:"models"`
	Embedding    EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Retrieval    RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	History      HistoryConfig   `json:"history" yaml:"history"`
	LogLevel     string          `json:"log_level" yaml:"log_level"`
}

// LoadConfig reads and parses the configuration from a YAML file.
//
// 同目录或工作目录下存在 .env 时会先加载，已有环境变量不会被覆盖，
// 这样 api_key: env:OPENAI_API_KEY 之类的引用可以从 .env 解析。
func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig 解析 YAML 内容，填充默认值并校验。
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *Config) ApplyDefaults() {
	if c.DefaultModel == "" && len(c.Models) > 0 {
		c.DefaultModel = c.Models[0].Name
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = DefaultBatchSize
	}
	if c.Retrieval.K == 0 {
		c.Retrieval.K = DefaultK
	}
	if c.Retrieval.ChunkSize == 0 {
		c.Retrieval.ChunkSize = DefaultChunkSize
	}
	if c.Retrieval.ChunkOverlap == 0 {
		c.Retrieval.ChunkOverlap = DefaultChunkOverlap
	}
	if c.Retrieval.ScoreOrder == "" {
		c.Retrieval.ScoreOrder = "distance"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate 检查配置的一致性。
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("%w: no models configured", ErrInvalidConfig)
	}
	if _, err := c.Model(c.DefaultModel); err != nil {
		return fmt.Errorf("%w: default_model: %w", ErrInvalidConfig, err)
	}
	if c.Retrieval.K < 1 {
		return fmt.Errorf("%w: retrieval.k must be >= 1, got %d", ErrInvalidConfig, c.Retrieval.K)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("%w: retrieval.chunk_overlap (%d) must be in [0, chunk_size %d)",
			ErrInvalidConfig, c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	switch c.Retrieval.ScoreOrder {
	case "distance", "similarity":
	default:
		return fmt.Errorf("%w: retrieval.score_order %q", ErrInvalidConfig, c.Retrieval.ScoreOrder)
	}
	if c.History.MaxTokens < 0 {
		return fmt.Errorf("%w: history.max_tokens must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Model 按名称查找模型配置。
func (c *Config) Model(name string) (*ModelConfig, error) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrModelNotFound, name)
}

// loadDotEnv 依次尝试加载候选 .env 文件，文件不存在不算错误。
func loadDotEnv(candidates ...string) error {
	seen := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err == nil {
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
