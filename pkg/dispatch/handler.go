// Package dispatch 把用户输入路由到命令或问答处理器，并以流的形式返回结果。
package dispatch

import (
	"context"
	"strings"
)

// Chunk 描述流式输出片段。
type Chunk struct {
	Content string
	Payload any // 扩展：携带结构化结果（如问答结果、会话切换）
	IsFinal bool
}

// Handler 处理一次请求，返回的通道在处理结束后关闭。
type Handler interface {
	Handle(ctx context.Context, req Request) <-chan Chunk
}

// HandlerFunc 便于直接以函数充当 Handler。
type HandlerFunc func(ctx context.Context, req Request) <-chan Chunk

// Handle 实现 Handler 接口。
func (f HandlerFunc) Handle(ctx context.Context, req Request) <-chan Chunk {
	if f == nil {
		return nil
	}
	return f(ctx, req)
}

// Collect 读取通道直到关闭，返回拼接的文本与最后一个非空 Payload。
func Collect(ch <-chan Chunk) (string, any) {
	if ch == nil {
		return "", nil
	}
	var (
		sb      strings.Builder
		payload any
	)
	for chunk := range ch {
		sb.WriteString(chunk.Content)
		if chunk.Payload != nil {
			payload = chunk.Payload
		}
	}
	return sb.String(), payload
}
