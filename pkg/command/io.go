package command

import (
	"context"

	"github.com/IMBotPlatform/IMBotRAG/pkg/dispatch"
)

// StreamWriter 把 cobra 的输出转成 dispatch.Chunk，命令可以像写 stdout 一样打印。
// 调用方不再读取时（ctx 结束），Write 返回 ctx 的错误而不是阻塞。
type StreamWriter struct {
	ctx context.Context
	ch  chan<- dispatch.Chunk
}

// NewStreamWriter 创建写入 ch 的 StreamWriter。
func NewStreamWriter(ctx context.Context, ch chan<- dispatch.Chunk) *StreamWriter {
	return &StreamWriter{ctx: ctx, ch: ch}
}

// Write 每次写入发送一个非 Final 片段，只携带本次的增量。
func (w *StreamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !send(w.ctx, w.ch, dispatch.Chunk{Content: string(p)}) {
		return 0, w.ctx.Err()
	}
	return len(p), nil
}

// send 投递一个片段；ctx 先结束时放弃并返回 false。
func send(ctx context.Context, ch chan<- dispatch.Chunk, chunk dispatch.Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
