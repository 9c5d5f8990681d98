package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/vectorstores"
)

// ContextDelimiter 分隔拼接后上下文中的各个片段。
const ContextDelimiter = "\n\n"

// ScoreOrder 描述检索后端分数的方向。
type ScoreOrder string

const (
	// DistanceAscending 表示分数是距离，越小越相似（内置向量存储使用 L2 距离）。
	DistanceAscending ScoreOrder = "distance"
	// SimilarityDescending 表示分数是相似度，越大越相似。
	SimilarityDescending ScoreOrder = "similarity"
)

// Better 判断分数 a 是否比 b 更相关。
func (o ScoreOrder) Better(a, b float32) bool {
	if o == SimilarityDescending {
		return a > b
	}
	return a < b
}

// Fragment 是一段检索到的外部文本，只在单次查询中存在。
type Fragment struct {
	Text     string
	Score    float32
	Metadata map[string]any
}

// Retriever 包装向量检索，负责片段的格式约定。
type Retriever struct {
	store vectorstores.VectorStore
	order ScoreOrder
	opts  []vectorstores.Option
}

// RetrieverOption 配置 Retriever。
type RetrieverOption func(*Retriever)

// WithScoreOrder 声明后端的分数方向，默认 DistanceAscending。
func WithScoreOrder(order ScoreOrder) RetrieverOption {
	return func(r *Retriever) {
		r.order = order
	}
}

// WithSearchOptions 透传给 SimilaritySearch 的参数。
func WithSearchOptions(opts ...vectorstores.Option) RetrieverOption {
	return func(r *Retriever) {
		r.opts = append(r.opts, opts...)
	}
}

// NewRetriever 基于任意 langchaingo VectorStore 创建检索步骤。
func NewRetriever(store vectorstores.VectorStore, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store: store,
		order: DistanceAscending,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ScoreOrder 返回声明的分数方向。
func (r *Retriever) ScoreOrder() ScoreOrder {
	return r.order
}

// Retrieve 返回最多 k 个片段，顺序与后端返回顺序一致，不做任何重排。
// 没有可用片段时返回空切片而非错误。
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Fragment, error) {
	if k < 1 {
		return nil, stageErr(StageRetrieve, fmt.Errorf("invalid k %d: must be >= 1", k))
	}
	if r.store == nil {
		return nil, stageErr(StageRetrieve, errors.New("vector store not initialized"))
	}

	docs, err := r.store.SimilaritySearch(ctx, query, k, r.opts...)
	if err != nil {
		return nil, stageErr(StageRetrieve, err)
	}

	fragments := make([]Fragment, 0, len(docs))
	for _, doc := range docs {
		fragments = append(fragments, Fragment{
			Text:     doc.PageContent,
			Score:    doc.Score,
			Metadata: doc.Metadata,
		})
	}
	if len(fragments) > k {
		fragments = fragments[:k]
	}
	return fragments, nil
}

// FormatContext 用空行拼接片段文本，保持检索顺序（stuffing）。
func FormatContext(fragments []Fragment) string {
	texts := FragmentTexts(fragments)
	return strings.Join(texts, ContextDelimiter)
}

// FragmentTexts 按顺序取出片段文本。
func FragmentTexts(fragments []Fragment) []string {
	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		texts = append(texts, f.Text)
	}
	return texts
}
