package aitest

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// StaticStore 是固定返回预设文档的向量存储，记录收到的查询。
// 返回顺序即 Docs 的顺序，不做任何排序。
type StaticStore struct {
	Docs []schema.Document
	Err  error

	mu      sync.Mutex
	queries []string
	ks      []int
}

// NewStaticStore 用若干文本构造 StaticStore，分数按位置递增。
func NewStaticStore(texts ...string) *StaticStore {
	docs := make([]schema.Document, 0, len(texts))
	for i, t := range texts {
		docs = append(docs, schema.Document{PageContent: t, Score: float32(i)})
	}
	return &StaticStore{Docs: docs}
}

// AddDocuments 实现 vectorstores.VectorStore。
func (s *StaticStore) AddDocuments(_ context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Docs = append(s.Docs, docs...)
	ids := make([]string, len(docs))
	return ids, nil
}

// SimilaritySearch 实现 vectorstores.VectorStore。
func (s *StaticStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, _ ...vectorstores.Option) ([]schema.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.ks = append(s.ks, numDocuments)

	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := numDocuments
	if n > len(s.Docs) {
		n = len(s.Docs)
	}
	return append([]schema.Document(nil), s.Docs[:n]...), nil
}

// Queries 返回收到的查询。
func (s *StaticStore) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Ks 返回每次查询请求的片段数。
func (s *StaticStore) Ks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ks...)
}

var _ vectorstores.VectorStore = (*StaticStore)(nil)
