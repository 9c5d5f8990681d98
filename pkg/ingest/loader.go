// Package ingest 把网页、PDF 与文本文件切分后写入向量存储。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// DefaultSelector 是网页正文的默认 CSS 选择器，页面中没有匹配时退回整页。
const DefaultSelector = "article"

// maxPageSize 限制单个网页的下载大小。
const maxPageSize = 20 << 20

// ErrUnexpectedStatus 表示抓取网页时返回了非 2xx 状态码。
var ErrUnexpectedStatus = errors.New("unexpected http status")

// Kind 是来源的类型。
type Kind string

const (
	KindURL  Kind = "url"
	KindHTML Kind = "html"
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

// KindOf 根据来源字符串判断加载方式。
func KindOf(source string) Kind {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return KindURL
	case strings.HasSuffix(lower, ".pdf"):
		return KindPDF
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return KindHTML
	default:
		return KindText
	}
}

// Loader 把来源读取为未切分的文档。
type Loader struct {
	client   *http.Client
	selector string
}

// LoaderOption 配置 Loader。
type LoaderOption func(*Loader)

// WithHTTPClient 替换抓取网页用的 HTTP 客户端。
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		l.client = client
	}
}

// WithSelector 设置网页正文的 CSS 选择器，空字符串表示整页。
func WithSelector(selector string) LoaderOption {
	return func(l *Loader) {
		l.selector = selector
	}
}

// NewLoader 创建加载器。
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client:   http.DefaultClient,
		selector: DefaultSelector,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load 读取来源，每个文档的元数据都带有 source；PDF 额外带 page。
func (l *Loader) Load(ctx context.Context, source string) ([]schema.Document, error) {
	var (
		docs []schema.Document
		err  error
	)
	switch KindOf(source) {
	case KindURL:
		docs, err = l.loadURL(ctx, source)
	case KindPDF:
		docs, err = loadPDF(ctx, source)
	case KindHTML:
		docs, err = l.loadHTMLFile(ctx, source)
	default:
		docs, err = loadText(ctx, source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", source, err)
	}

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata["source"] = source
	}
	return docs, nil
}

func (l *Loader) loadURL(ctx context.Context, url string) ([]schema.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return l.loadHTML(ctx, io.LimitReader(resp.Body, maxPageSize))
}

func (l *Loader) loadHTMLFile(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.loadHTML(ctx, f)
}

// loadHTML 先用 goquery 截取选择器匹配的部分，再交给 HTML 加载器清洗。
func (l *Loader) loadHTML(ctx context.Context, r io.Reader) ([]schema.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	sel := doc.Selection
	if l.selector != "" {
		if found := doc.Find(l.selector); found.Length() > 0 {
			sel = found
		}
	}

	var sb strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		sb.WriteString(html)
		sb.WriteString("\n")
	})
	return documentloaders.NewHTML(strings.NewReader(sb.String())).Load(ctx)
}

func loadPDF(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return documentloaders.NewPDF(f, info.Size()).Load(ctx)
}

func loadText(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return documentloaders.NewText(f).Load(ctx)
}
