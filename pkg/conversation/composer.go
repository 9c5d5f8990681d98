package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// DefaultAnswerPrompt 是回答阶段的系统提示模板，{{.context}} 处填入检索上下文。
const DefaultAnswerPrompt = `You are an assistant for question-answering tasks.
Use the given context to answer the question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Keep the answer as concise as possible.

{{.context}}`

// State 表示单次问答所处的阶段。
type State string

const (
	StatePending          State = "pending"
	StateRetrieved        State = "retrieved"
	StateSkippedRetrieval State = "skipped_retrieval"
	StateAnswered         State = "answered"
	StateCommitted        State = "committed"
	StateFailed           State = "failed"
)

// Composer 基于上下文与历史生成回答，并把本轮问答写回会话。
type Composer struct {
	model  llms.Model
	store  SessionStore
	prompt prompts.PromptTemplate
	opts   []llms.CallOption
}

// ComposerOption 配置 Composer。
type ComposerOption func(*Composer)

// WithAnswerPrompt 替换默认系统提示模板，模板中需包含 {{.context}}。
func WithAnswerPrompt(tmpl string) ComposerOption {
	return func(c *Composer) {
		c.prompt = prompts.NewPromptTemplate(tmpl, []string{"context"})
	}
}

// WithComposeCallOptions 附加模型调用参数。
func WithComposeCallOptions(opts ...llms.CallOption) ComposerOption {
	return func(c *Composer) {
		c.opts = append(c.opts, opts...)
	}
}

// NewComposer 创建回答器，store 用于提交本轮消息。
func NewComposer(model llms.Model, store SessionStore, opts ...ComposerOption) *Composer {
	c := &Composer{
		model:  model,
		store:  store,
		prompt: prompts.NewPromptTemplate(DefaultAnswerPrompt, []string{"context"}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Messages 组装发送给模型的消息：system(含上下文) + history + user(input)。
func (c *Composer) Messages(history []Message, input, contextBlock string) ([]llms.MessageContent, error) {
	system, err := c.prompt.Format(map[string]any{"context": contextBlock})
	if err != nil {
		return nil, fmt.Errorf("failed to render answer prompt: %w", err)
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	messages = append(messages, toMessageContents(history)...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))
	return messages, nil
}

// Compose 生成回答。成功后一次性追加 (user: input, assistant: answer)；
// 失败或被取消时会话历史保持不变。
func (c *Composer) Compose(ctx context.Context, sessionID string, history []Message, input, contextBlock string) (string, error) {
	if c.model == nil {
		return "", stageErr(StageCompose, errors.New("llm not initialized"))
	}
	if c.store == nil {
		return "", stageErr(StageCompose, errors.New("session store not initialized"))
	}

	messages, err := c.Messages(history, input, contextBlock)
	if err != nil {
		return "", stageErr(StageCompose, err)
	}

	answer, err := generateText(ctx, c.model, messages, c.opts...)
	if err != nil {
		return "", stageErr(StageCompose, err)
	}

	// 模型返回后再检查一次，取消的请求不提交
	if err := ctx.Err(); err != nil {
		return "", &StageError{Stage: StageCompose, State: StateAnswered, Err: err}
	}

	if err := c.store.Append(ctx, sessionID, UserMessage(input), AssistantMessage(answer)); err != nil {
		return "", &StageError{Stage: StageCompose, State: StateAnswered, Err: fmt.Errorf("failed to commit turn: %w", err)}
	}
	return answer, nil
}
