package command

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/IMBotPlatform/IMBotRAG/pkg/dispatch"
)

const commandLogSnippet = 256

// Manager 实现 dispatch.Handler，负责串联解析、构建 Cobra 命令树并执行。
type Manager struct {
	factory CommandFactory
	store   ConversationStore
	logger  zerolog.Logger
	history HistoryReader
	router  QueryRouter
}

// ManagerOption 自定义 Manager 行为。
type ManagerOption func(*Manager)

// WithLogger 注入日志实例。
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithHistory 注入会话历史读取器，供 /history 使用。
func WithHistory(h HistoryReader) ManagerOption {
	return func(m *Manager) {
		m.history = h
	}
}

// WithRouter 注入问题路由器，供 /route 使用。
func WithRouter(r QueryRouter) ManagerOption {
	return func(m *Manager) {
		m.router = r
	}
}

// NewManager 绑定命令工厂与存储，返回实现 dispatch.Handler 的管理器。
func NewManager(factory CommandFactory, store ConversationStore, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		factory: factory,
		store:   store,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Handle 满足 dispatch.Handler，为每个请求构建独立的命令树并执行。
func (m *Manager) Handle(ctx context.Context, req dispatch.Request) <-chan dispatch.Chunk {
	out := make(chan dispatch.Chunk, 1)
	go func() {
		defer close(out)

		if m == nil || m.factory == nil {
			send(ctx, out, dispatch.Chunk{Content: "Error: Command Manager not initialized", IsFinal: true})
			return
		}

		// 1. 初步解析
		inv, ok := ParseInvocation(req.Text)
		if !ok {
			if strings.TrimSpace(req.Text) == "" {
				send(ctx, out, dispatch.Chunk{Content: "please enter a command (e.g. /help)", IsFinal: true})
			} else {
				send(ctx, out, dispatch.Chunk{Content: fmt.Sprintf("unknown command: %s\ntry /help", req.Text), IsFinal: true})
			}
			return
		}

		// 2. 创建 Cobra 命令树
		rootCmd := m.factory()

		// 3. 配置 IO 重定向
		writer := NewStreamWriter(ctx, out)
		rootCmd.SetOut(writer)
		rootCmd.SetErr(writer)
		rootCmd.CompletionOptions.DisableDefaultCmd = true

		// 4. 准备上下文，Final 信号只发送一次
		var signalOnce sync.Once
		sendSignal := func(chunk dispatch.Chunk) {
			signalOnce.Do(func() {
				send(ctx, out, chunk)
			})
		}

		execCtx := &ExecutionContext{
			Request:    req,
			Store:      m.store,
			history:    m.history,
			router:     m.router,
			sendSignal: sendSignal,
		}

		convKey := execCtx.ConversationKey()
		if m.store != nil {
			if values, err := m.store.Load(convKey); err != nil {
				m.logger.Warn().Err(err).Str("session_id", convKey).Msg("failed to load command context")
			} else {
				execCtx.Values = values
			}
		}

		// 5. 设置参数并执行
		args := inv.Tokens()
		// 第一个 token 与根命令同名时移除，避免 "unknown command X for X"
		if len(args) > 0 && strings.EqualFold(args[0], rootCmd.Name()) {
			args = args[1:]
		}
		rootCmd.SetArgs(args)
		m.logger.Debug().
			Strs("args", args).
			Str("session_id", req.SessionID).
			Str("raw", truncateForLog(req.Text, commandLogSnippet)).
			Msg("executing command")

		if err := rootCmd.ExecuteContext(WithExecutionContext(ctx, execCtx)); err != nil {
			m.logger.Warn().Err(err).Strs("args", args).Msg("command execution error")
			send(ctx, out, dispatch.Chunk{Content: fmt.Sprintf("❌ command failed: %v\n", err)})
		}

		signalOnce.Do(func() {
			send(ctx, out, dispatch.Chunk{IsFinal: true})
		})
	}()
	return out
}

// truncateForLog 限制日志中输出的文本长度。
func truncateForLog(src string, limit int) string {
	if limit <= 0 || len(src) <= limit {
		return src
	}
	return fmt.Sprintf("%s...(truncated)", src[:limit])
}
