package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// DefaultRewritePrompt 是改写阶段的系统指令。
const DefaultRewritePrompt = `Given a chat history and the latest user question
which might reference context in the chat history,
formulate a standalone question which can be understood
without the chat history. Do NOT answer the question,
just reformulate it if needed and otherwise return it as is.`

// Rewriter 结合历史把追问改写为可独立检索的问题。
type Rewriter struct {
	model  llms.Model
	prompt string
	opts   []llms.CallOption
}

// RewriterOption 配置 Rewriter。
type RewriterOption func(*Rewriter)

// WithRewritePrompt 替换默认的改写指令。
func WithRewritePrompt(prompt string) RewriterOption {
	return func(r *Rewriter) {
		r.prompt = prompt
	}
}

// WithRewriteCallOptions 附加模型调用参数（如温度）。
func WithRewriteCallOptions(opts ...llms.CallOption) RewriterOption {
	return func(r *Rewriter) {
		r.opts = append(r.opts, opts...)
	}
}

// NewRewriter 创建改写器。
func NewRewriter(model llms.Model, opts ...RewriterOption) *Rewriter {
	r := &Rewriter{
		model:  model,
		prompt: DefaultRewritePrompt,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rewrite 返回独立查询以及是否真的调用了模型。
//
//	history 为空 -> 原样返回 input，不调用模型
//	history 非空 -> [system 指令] + history + [user: input] -> 模型 -> 去掉首尾空白后返回
//
// 模型调用失败或返回空白文本时返回 ErrRewriteFailed，不回退到原始输入。
func (r *Rewriter) Rewrite(ctx context.Context, history []Message, input string) (string, bool, error) {
	if len(history) == 0 {
		return input, false, nil
	}
	if r.model == nil {
		return "", false, stageErr(StageRewrite, errors.New("llm not initialized"))
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, r.prompt))
	messages = append(messages, toMessageContents(history)...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))

	text, err := generateText(ctx, r.model, messages, r.opts...)
	if err != nil {
		return "", false, stageErr(StageRewrite, err)
	}
	query := strings.TrimSpace(text)
	if query == "" {
		return "", false, stageErr(StageRewrite, errors.New("empty rewritten query"))
	}
	return query, true, nil
}
