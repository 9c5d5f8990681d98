// Package aitest 提供测试用的脚本化模型、嵌入器与向量存储。
package aitest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrScriptExhausted 表示脚本中的响应已全部用完。
var ErrScriptExhausted = errors.New("scripted model: no more responses")

// Response 是一次预设的模型返回。
type Response struct {
	Text      string
	ToolCalls []llms.ToolCall
	Err       error
}

// Call 记录一次 GenerateContent 调用。
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Texts 返回每条消息的文本（多个文本片段直接拼接）。
func (c Call) Texts() []string {
	out := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		var sb strings.Builder
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				sb.WriteString(t.Text)
			}
		}
		out = append(out, sb.String())
	}
	return out
}

// Roles 返回每条消息的角色。
func (c Call) Roles() []llms.ChatMessageType {
	out := make([]llms.ChatMessageType, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, m.Role)
	}
	return out
}

// ScriptedModel 按顺序返回预设响应，并记录每次调用。
// 设置了 Handler 时优先交给 Handler 处理。
type ScriptedModel struct {
	Handler func(ctx context.Context, call Call) (Response, error)

	mu        sync.Mutex
	responses []Response
	calls     []Call
}

// NewScriptedModel 创建按顺序应答的模型。
func NewScriptedModel(responses ...Response) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// Texts 便捷构造只返回文本的脚本模型。
func Texts(texts ...string) *ScriptedModel {
	responses := make([]Response, 0, len(texts))
	for _, t := range texts {
		responses = append(responses, Response{Text: t})
	}
	return NewScriptedModel(responses...)
}

// Push 追加预设响应。
func (m *ScriptedModel) Push(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// GenerateContent 实现 llms.Model。
func (m *ScriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	call := Call{
		Messages: append([]llms.MessageContent(nil), messages...),
		Options:  opts,
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	handler := m.Handler
	var (
		resp Response
		ok   bool
	)
	if handler == nil && len(m.responses) > 0 {
		resp, m.responses = m.responses[0], m.responses[1:]
		ok = true
	}
	m.mu.Unlock()

	if handler != nil {
		var err error
		resp, err = handler(ctx, call)
		if err != nil {
			return nil, err
		}
	} else if !ok {
		return nil, ErrScriptExhausted
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	choice := &llms.ContentChoice{
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	}
	if len(resp.ToolCalls) > 0 {
		choice.FuncCall = resp.ToolCalls[0].FunctionCall
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

// Call 实现 llms.Model。
func (m *ScriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls 返回已记录调用的拷贝。
func (m *ScriptedModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount 返回调用次数。
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ToolCall 构造一个 function 类型的工具调用。
func ToolCall(name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   "call_" + name,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

var _ llms.Model = (*ScriptedModel)(nil)
