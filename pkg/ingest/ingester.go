package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"
)

// 默认切分参数。
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Ingester 负责 加载 -> 切分 -> 写入向量存储。
type Ingester struct {
	store       vectorstores.VectorStore
	loader      *Loader
	splitter    textsplitter.TextSplitter
	concurrency int
	storeOpts   []vectorstores.Option
	logger      zerolog.Logger
}

// Option 配置 Ingester。
type Option func(*Ingester)

// WithLoader 替换默认加载器。
func WithLoader(loader *Loader) Option {
	return func(i *Ingester) {
		i.loader = loader
	}
}

// WithChunking 设置切分大小与重叠。
func WithChunking(size, overlap int) Option {
	return func(i *Ingester) {
		i.splitter = textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		)
	}
}

// WithSplitter 使用自定义切分器。
func WithSplitter(splitter textsplitter.TextSplitter) Option {
	return func(i *Ingester) {
		i.splitter = splitter
	}
}

// WithConcurrency 设置并发加载的来源数。
func WithConcurrency(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithStoreOptions 透传给 AddDocuments 的参数（如命名空间）。
func WithStoreOptions(opts ...vectorstores.Option) Option {
	return func(i *Ingester) {
		i.storeOpts = append(i.storeOpts, opts...)
	}
}

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Ingester) {
		i.logger = logger
	}
}

// New 创建 Ingester。
func New(store vectorstores.VectorStore, opts ...Option) *Ingester {
	i := &Ingester{
		store:  store,
		loader: NewLoader(),
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(DefaultChunkSize),
			textsplitter.WithChunkOverlap(DefaultChunkOverlap),
		),
		concurrency: 4,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Split 切分文档，元数据会复制到每个片段上。
func (i *Ingester) Split(docs []schema.Document) ([]schema.Document, error) {
	chunks, err := textsplitter.SplitDocuments(i.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}
	return chunks, nil
}

// Ingest 并发加载全部来源，按来源顺序切分后一次写入向量存储，返回写入的片段数。
// 任一来源加载失败则不写入任何内容。
func (i *Ingester) Ingest(ctx context.Context, sources ...string) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	if i.store == nil {
		return 0, errors.New("vector store not initialized")
	}

	start := time.Now()
	loaded := make([][]schema.Document, len(sources))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(i.concurrency)
	for idx, source := range sources {
		p.Go(func(ctx context.Context) error {
			docs, err := i.loader.Load(ctx, source)
			if err != nil {
				return err
			}
			loaded[idx] = docs
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}

	var chunks []schema.Document
	for idx, docs := range loaded {
		split, err := i.Split(docs)
		if err != nil {
			return 0, err
		}
		i.logger.Debug().
			Str("source", sources[idx]).
			Int("documents", len(docs)).
			Int("chunks", len(split)).
			Msg("source loaded")
		chunks = append(chunks, split...)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	ids, err := i.store.AddDocuments(ctx, chunks, i.storeOpts...)
	if err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}

	i.logger.Info().
		Int("sources", len(sources)).
		Int("chunks", len(ids)).
		Dur("elapsed", time.Since(start)).
		Msg("ingest finished")
	return len(ids), nil
}
