// Package vectorstore 提供进程内的向量索引，实现 langchaingo 的 vectorstores.VectorStore。
//
// 检索使用暴力 L2 距离，Document.Score 为距离本身：越小越相似。
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"gonum.org/v1/gonum/floats"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

var (
	// ErrMissingEmbedder 表示既没有默认嵌入器，调用时也没有通过 WithEmbedder 指定。
	ErrMissingEmbedder = errors.New("vectorstore: embedder not configured")
	// ErrInvalidNumDocuments 表示检索数量小于 1。
	ErrInvalidNumDocuments = errors.New("vectorstore: number of documents must be >= 1")
	// ErrEmbeddingMismatch 表示嵌入器返回的向量数与输入不一致。
	ErrEmbeddingMismatch = errors.New("vectorstore: embedding count mismatch")
)

// entry 是索引中的一条记录。
type entry struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace,omitempty"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Vector    []float32      `json:"vector"`
}

// Store 是基于内存的向量存储，可并发读写。
type Store struct {
	embedder    embeddings.Embedder
	batchSize   int
	concurrency int
	logger      zerolog.Logger

	mu      sync.RWMutex
	entries []entry
}

// Option 配置 Store。
type Option func(*Store)

// WithBatchSize 设置每次嵌入调用的文本数。
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency 设置并发嵌入的批次数上限。
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New 创建空的向量存储，embedder 可为空（此时每次调用都需通过 vectorstores.WithEmbedder 提供）。
func New(embedder embeddings.Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:    embedder,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Len 返回索引中的条目数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// AddDocuments 实现 vectorstores.VectorStore。
//
// 文档按批次并发向量化，结果按原始顺序写入索引；任一批次失败则整体不写入。
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.options(options)
	embedder := opts.Embedder
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}

	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}

	vectors := make([][]float32, len(texts))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(s.concurrency)
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		p.Go(func(ctx context.Context) error {
			batch, err := embedder.EmbedDocuments(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("failed to embed documents [%d:%d]: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: want %d, got %d", ErrEmbeddingMismatch, end-start, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	added := make([]entry, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		added[i] = entry{
			ID:        ids[i],
			Namespace: opts.NameSpace,
			Text:      doc.PageContent,
			Metadata:  maps.Clone(doc.Metadata),
			Vector:    vectors[i],
		}
	}

	s.mu.Lock()
	s.entries = append(s.entries, added...)
	total := len(s.entries)
	s.mu.Unlock()

	s.logger.Debug().
		Int("added", len(added)).
		Int("total", total).
		Str("namespace", opts.NameSpace).
		Msg("documents indexed")
	return ids, nil
}

// SimilaritySearch 实现 vectorstores.VectorStore。
//
// 支持的选项：
//   - WithScoreThreshold：丢弃距离大于阈值的结果（阈值为 0 表示不过滤）
//   - WithNameSpace：只在该命名空间中检索
//   - WithFilters：map[string]any，要求元数据逐项相等
//   - WithEmbedder：覆盖默认嵌入器
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments < 1 {
		return nil, ErrInvalidNumDocuments
	}
	opts := s.options(options)
	if opts.Embedder == nil {
		return nil, ErrMissingEmbedder
	}
	filters, err := metadataFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	qv, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	q := toFloat64(qv)

	type candidate struct {
		idx      int
		distance float64
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]candidate, 0, len(s.entries))
	skipped := 0
	for i, e := range s.entries {
		if e.Namespace != opts.NameSpace {
			continue
		}
		if !matchMetadata(e.Metadata, filters) {
			continue
		}
		if len(e.Vector) != len(q) {
			skipped++
			continue
		}
		d := floats.Distance(q, toFloat64(e.Vector), 2)
		if opts.ScoreThreshold > 0 && d > float64(opts.ScoreThreshold) {
			continue
		}
		candidates = append(candidates, candidate{idx: i, distance: d})
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Int("dim", len(q)).Msg("vector dimension mismatch")
	}

	// 距离相同保持插入顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > numDocuments {
		candidates = candidates[:numDocuments]
	}

	docs := make([]schema.Document, 0, len(candidates))
	for _, c := range candidates {
		e := s.entries[c.idx]
		docs = append(docs, schema.Document{
			PageContent: e.Text,
			Metadata:    maps.Clone(e.Metadata),
			Score:       float32(c.distance),
		})
	}
	return docs, nil
}

func (s *Store) options(options []vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = s.embedder
	}
	return opts
}

func metadataFilters(raw any) (map[string]any, error) {
	switch f := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return f, nil
	case map[string]string:
		out := make(map[string]any, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("vectorstore: unsupported filter type %T", raw)
	}
}

func matchMetadata(meta, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

var _ vectorstores.VectorStore = (*Store)(nil)
