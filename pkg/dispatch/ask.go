package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
)

// Asker 是问答管线的最小接口，*conversation.Pipeline 满足它。
type Asker interface {
	Ask(ctx context.Context, sessionID, input string) (*conversation.Answer, error)
}

// AnswerHook 在问答成功后被调用，可用于记录来源等旁路信息。
type AnswerHook func(req Request, answer *conversation.Answer)

// AskOption 配置 AskHandler。
type AskOption func(*askHandler)

// WithAnswerHook 注册问答成功后的回调。
func WithAnswerHook(hook AnswerHook) AskOption {
	return func(h *askHandler) {
		h.hook = hook
	}
}

// WithAskLogger 注入日志实例。
func WithAskLogger(logger zerolog.Logger) AskOption {
	return func(h *askHandler) {
		h.logger = logger
	}
}

type askHandler struct {
	asker  Asker
	hook   AnswerHook
	logger zerolog.Logger
}

// AskHandler 把普通文本交给问答管线，回答作为一个 Final 片段返回，
// Payload 为 *conversation.Answer。
func AskHandler(asker Asker, opts ...AskOption) Handler {
	h := &askHandler{asker: asker, logger: zerolog.Nop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *askHandler) Handle(ctx context.Context, req Request) <-chan Chunk {
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)

		if h.asker == nil {
			out <- Chunk{Content: "Error: pipeline not initialized", IsFinal: true}
			return
		}

		answer, err := h.asker.Ask(ctx, req.SessionID, req.Text)
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("ask failed")
			out <- Chunk{Content: describeError(err), IsFinal: true}
			return
		}
		if h.hook != nil {
			h.hook(req, answer)
		}
		out <- Chunk{Content: answer.Text, Payload: answer, IsFinal: true}
	}()
	return out
}

// describeError 把管线错误转成面向用户的提示。
func describeError(err error) string {
	var stageErr *conversation.StageError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "❌ request cancelled, nothing was recorded"
	case errors.As(err, &stageErr):
		return fmt.Sprintf("❌ %s step failed: %v", stageErr.Stage, stageErr.Err)
	default:
		return fmt.Sprintf("❌ %v", err)
	}
}
