package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/vectorstores"
)

// DefaultK 是默认的检索片段数。
const DefaultK = 6

// Answer 是一次问答的结果。
type Answer struct {
	Text      string     // 模型回答
	Context   []string   // 本轮实际使用的片段文本，按检索顺序
	Fragments []Fragment // 带分数与元数据的原始片段
	Query     string     // 用于检索的查询（可能经过改写）
	Rewritten bool       // 是否调用了改写模型
	State     State
}

// Pipeline 串联改写、检索与回答三个步骤。
type Pipeline struct {
	sessions  SessionStore
	rewriter  *Rewriter
	retriever *Retriever
	composer  *Composer

	k         int
	maxTokens int
	counter   TokenCounter
	logger    zerolog.Logger
}

type pipelineConfig struct {
	sessions     SessionStore
	rewriteModel llms.Model
	k            int
	maxTokens    int
	counter      TokenCounter
	logger       zerolog.Logger
	rewriterOpts []RewriterOption
	retrieveOpts []RetrieverOption
	composerOpts []ComposerOption
}

// Option 配置 Pipeline。
type Option func(*pipelineConfig)

// WithSessionStore 指定会话存储，默认每个 Pipeline 使用独立的 MemoryStore。
func WithSessionStore(store SessionStore) Option {
	return func(c *pipelineConfig) {
		c.sessions = store
	}
}

// WithRewriteModel 为改写步骤指定单独的模型，默认与回答共用。
func WithRewriteModel(model llms.Model) Option {
	return func(c *pipelineConfig) {
		c.rewriteModel = model
	}
}

// WithK 设置每次检索的片段数。
func WithK(k int) Option {
	return func(c *pipelineConfig) {
		c.k = k
	}
}

// WithHistoryWindow 限制送入模型的历史 token 数，maxTokens <= 0 表示不限制。
// counter 为空时使用 gpt-3.5-turbo 的编码估算。
func WithHistoryWindow(maxTokens int, counter TokenCounter) Option {
	return func(c *pipelineConfig) {
		c.maxTokens = maxTokens
		c.counter = counter
	}
}

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) Option {
	return func(c *pipelineConfig) {
		c.logger = logger
	}
}

// WithRewriterOptions 透传改写器配置。
func WithRewriterOptions(opts ...RewriterOption) Option {
	return func(c *pipelineConfig) {
		c.rewriterOpts = append(c.rewriterOpts, opts...)
	}
}

// WithRetrieverOptions 透传检索配置。
func WithRetrieverOptions(opts ...RetrieverOption) Option {
	return func(c *pipelineConfig) {
		c.retrieveOpts = append(c.retrieveOpts, opts...)
	}
}

// WithComposerOptions 透传回答器配置。
func WithComposerOptions(opts ...ComposerOption) Option {
	return func(c *pipelineConfig) {
		c.composerOpts = append(c.composerOpts, opts...)
	}
}

// NewPipeline 用对话模型与向量存储构建完整管线。
func NewPipeline(model llms.Model, store vectorstores.VectorStore, opts ...Option) *Pipeline {
	cfg := &pipelineConfig{
		k:      DefaultK,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.sessions == nil {
		cfg.sessions = NewMemoryStore()
	}
	if cfg.rewriteModel == nil {
		cfg.rewriteModel = model
	}
	if cfg.maxTokens > 0 && cfg.counter == nil {
		cfg.counter = ModelTokenCounter("gpt-3.5-turbo")
	}

	return &Pipeline{
		sessions:  cfg.sessions,
		rewriter:  NewRewriter(cfg.rewriteModel, cfg.rewriterOpts...),
		retriever: NewRetriever(store, cfg.retrieveOpts...),
		composer:  NewComposer(model, cfg.sessions, cfg.composerOpts...),
		k:         cfg.k,
		maxTokens: cfg.maxTokens,
		counter:   cfg.counter,
		logger:    cfg.logger,
	}
}

// Sessions 返回管线使用的会话存储。
func (p *Pipeline) Sessions() SessionStore {
	return p.sessions
}

// Retriever 返回管线使用的检索步骤。
func (p *Pipeline) Retriever() *Retriever {
	return p.retriever
}

// Ask 执行一次完整问答：
//
//	GetOrCreate -> 历史快照 -> 改写 -> 检索 -> 拼接上下文 -> 回答并提交
//
// 改写与回答都基于本轮开始前的历史快照，当前问题不会在提示中出现两次。
// 任一步失败都不会修改会话历史，返回的 StageError 带有失败前所处的状态。
func (p *Pipeline) Ask(ctx context.Context, sessionID, input string) (*Answer, error) {
	logger := p.logger.With().Str("session_id", sessionID).Logger()
	state := StatePending

	sess, err := p.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	full := sess.Messages()
	history := TrimHistory(full, p.maxTokens, p.counter)
	if len(history) == 0 && len(full) > 0 {
		// 窗口放不下任何一轮时仍保留最近一轮，非空会话的追问始终经过改写
		history = LastExchange(full)
	}

	start := time.Now()
	query, rewritten, err := p.rewriter.Rewrite(ctx, history, input)
	if err != nil {
		p.fail(logger, StageRewrite, state, err)
		return nil, err
	}
	logger.Debug().
		Str("stage", string(StageRewrite)).
		Bool("rewritten", rewritten).
		Str("query", query).
		Dur("elapsed", time.Since(start)).
		Msg("query ready")

	start = time.Now()
	fragments, err := p.retriever.Retrieve(ctx, query, p.k)
	if err != nil {
		p.fail(logger, StageRetrieve, state, err)
		return nil, err
	}
	if len(fragments) == 0 {
		state = StateSkippedRetrieval
	} else {
		state = StateRetrieved
	}
	logger.Debug().
		Str("stage", string(StageRetrieve)).
		Str("state", string(state)).
		Int("fragments", len(fragments)).
		Dur("elapsed", time.Since(start)).
		Msg("context retrieved")

	start = time.Now()
	text, err := p.composer.Compose(ctx, sessionID, history, input, FormatContext(fragments))
	if err != nil {
		p.fail(logger, StageCompose, state, err)
		return nil, err
	}
	state = StateCommitted
	logger.Debug().
		Str("stage", string(StageCompose)).
		Str("state", string(state)).
		Dur("elapsed", time.Since(start)).
		Msg("turn committed")

	return &Answer{
		Text:      text,
		Context:   FragmentTexts(fragments),
		Fragments: fragments,
		Query:     query,
		Rewritten: rewritten,
		State:     state,
	}, nil
}

// History 返回会话历史快照，会话不存在时返回 ErrSessionNotFound。
func (p *Pipeline) History(ctx context.Context, sessionID string) ([]Message, error) {
	return p.sessions.History(ctx, sessionID)
}

// fail 记录失败日志；StageError 未标注状态时补上 from。
func (p *Pipeline) fail(logger zerolog.Logger, stage Stage, from State, err error) {
	var se *StageError
	if errors.As(err, &se) {
		if se.State == "" {
			se.State = from
		}
		from = se.State
	}
	logger.Error().
		Err(err).
		Str("stage", string(stage)).
		Str("from", string(from)).
		Str("state", string(StateFailed)).
		Msg("pipeline stage failed")
}
