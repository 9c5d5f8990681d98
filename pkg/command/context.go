package command

import (
	"context"

	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
	"github.com/IMBotPlatform/IMBotRAG/pkg/dispatch"
	"github.com/IMBotPlatform/IMBotRAG/pkg/router"
)

// keyExecutionContext 是 context.Context 中存储 ExecutionContext 的键。
type keyExecutionContext struct{}

// 命令上下文中约定的键。
const (
	KeyLastQuery   = "last_query"
	KeyLastSources = "last_sources"
)

// ContextValues 存储命令执行过程中的上下文扩展字段。
type ContextValues map[string]string

// ConversationStore 定义上下文存取接口，便于替换实现。
type ConversationStore interface {
	Load(key string) (ContextValues, error)
	Save(key string, values ContextValues) error
}

// HistoryReader 读取会话历史，*conversation.Pipeline 满足它。
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]conversation.Message, error)
}

// QueryRouter 把问题路由到专家提示，*router.Router 满足它。
type QueryRouter interface {
	Route(ctx context.Context, input string) (router.Result, error)
}

// SessionSwitch 是 /session 命令返回的 Payload，前端据此切换当前会话。
type SessionSwitch struct {
	SessionID string
}

// ExecutionContext 为命令 handler 提供必要的环境信息。
type ExecutionContext struct {
	Request dispatch.Request
	Values  ContextValues
	Store   ConversationStore

	history HistoryReader
	router  QueryRouter

	// sendSignal 允许命令立即向前端发送 Final 片段
	sendSignal func(chunk dispatch.Chunk)
}

// SetResponsePayload 立即发送结构化响应对象。
func (ctx *ExecutionContext) SetResponsePayload(payload any) {
	if ctx.sendSignal != nil {
		ctx.sendSignal(dispatch.Chunk{
			Payload: payload,
			IsFinal: true,
		})
	}
}

// History 返回会话历史读取器，可能为 nil。
func (ctx *ExecutionContext) History() HistoryReader {
	return ctx.history
}

// Router 返回问题路由器，可能为 nil。
func (ctx *ExecutionContext) Router() QueryRouter {
	return ctx.router
}

// ConversationKey 返回当前上下文在存储中的唯一 key，即会话 ID。
func (ctx *ExecutionContext) ConversationKey() string {
	if ctx == nil {
		return ""
	}
	return ctx.Request.SessionID
}

// WithExecutionContext 将 ExecutionContext 注入到标准 context.Context 中。
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, keyExecutionContext{}, execCtx)
}

// FromContext 从标准 context.Context 中提取 ExecutionContext。
func FromContext(ctx context.Context) *ExecutionContext {
	val, _ := ctx.Value(keyExecutionContext{}).(*ExecutionContext)
	return val
}
