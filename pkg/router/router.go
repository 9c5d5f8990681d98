package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// ErrExpertFailed 表示专家回答阶段的模型调用失败。
var ErrExpertFailed = errors.New("expert failed")

const physicsTemplate = `You are a very smart physics professor. You are great at answering questions about physics in a concise and easy to understand manner. When you don't know the answer to a question you admit that you don't know. Be precise.

Here is a question:
{{.input}}`

const poemTemplate = `You are a very good poet. You are skilled at writing short poems on a given topic.

Here is a statement:
{{.input}}`

const historyTemplate = `You are a very good historian. You have an excellent knowledge of and understanding of people, events and contexts from a range of historical periods. You have the ability to think, reflect, debate, discuss and evaluate the past. You have a respect for historical evidence and the ability to make use of it to support your explanations and judgements.

Here is a question:
{{.input}}`

// Result 是一次路由问答的结果。
type Result struct {
	Destination Destination
	Prompt      string // 实际发送给模型的提示
	Answer      string
}

// Router 分类后按目标选择专家提示并生成回答。
type Router struct {
	classifier *Classifier
	model      llms.Model
	physics    prompts.PromptTemplate
	poem       prompts.PromptTemplate
	history    prompts.PromptTemplate
	logger     zerolog.Logger
}

// Option 配置 Router。
type Option func(*Router)

// WithLogger 注入日志实例。
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New 创建路由器，分类与回答共用同一个模型。
func New(model llms.Model, opts ...Option) (*Router, error) {
	r := &Router{
		model:   model,
		physics: prompts.NewPromptTemplate(physicsTemplate, []string{"input"}),
		poem:    prompts.NewPromptTemplate(poemTemplate, []string{"input"}),
		history: prompts.NewPromptTemplate(historyTemplate, []string{"input"}),
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}

	classifier, err := NewClassifier(model, WithClassifierLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.classifier = classifier
	return r, nil
}

// Route 分类 -> 选择专家提示 -> 回答。
func (r *Router) Route(ctx context.Context, input string) (Result, error) {
	start := time.Now()
	dest, err := r.classifier.Classify(ctx, input)
	if err != nil {
		return Result{Destination: DestinationDefault}, err
	}

	prompt, err := r.Prompt(dest, input)
	if err != nil {
		return Result{Destination: dest}, fmt.Errorf("%w: %w", ErrExpertFailed, err)
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, r.model, prompt)
	if err != nil {
		return Result{Destination: dest, Prompt: prompt}, fmt.Errorf("%w: %w", ErrExpertFailed, err)
	}

	r.logger.Debug().
		Str("destination", string(dest)).
		Dur("elapsed", time.Since(start)).
		Msg("query routed")
	return Result{Destination: dest, Prompt: prompt, Answer: answer}, nil
}

// Prompt 渲染目标对应的提示，默认分支原样返回输入。
func (r *Router) Prompt(dest Destination, input string) (string, error) {
	values := map[string]any{"input": input}
	switch dest {
	case DestinationPhysics:
		return r.physics.Format(values)
	case DestinationPoem:
		return r.poem.Format(values)
	case DestinationHistory:
		return r.history.Format(values)
	default:
		return input, nil
	}
}
