package conversation

import "github.com/tmc/langchaingo/llms"

// TokenCounter 估算一段文本的 token 数。
type TokenCounter func(text string) int

// ModelTokenCounter 返回基于 tiktoken 编码的计数器；未知模型回退到 gpt2 编码。
func ModelTokenCounter(model string) TokenCounter {
	return func(text string) int {
		return llms.CountTokens(model, text)
	}
}

// TrimHistory 按 "last" 策略截取历史窗口：
//   - 开头的 system 消息始终保留并计入预算；
//   - 从最新一条往前累加，放不下整条消息就停止（不拆分消息）；
//   - 窗口必须从 user 消息开始，开头多余的 assistant 消息会被丢弃。
//
// maxTokens <= 0 表示不截取，返回原历史的拷贝。
func TrimHistory(msgs []Message, maxTokens int, counter TokenCounter) []Message {
	if maxTokens <= 0 || counter == nil {
		return append([]Message(nil), msgs...)
	}

	var head []Message
	rest := msgs
	budget := maxTokens
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		head = rest[:1]
		budget -= counter(rest[0].Content)
		rest = rest[1:]
	}

	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := counter(rest[i].Content)
		if cost > budget {
			break
		}
		budget -= cost
		start = i
	}

	window := rest[start:]
	for len(window) > 0 && window[0].Role != RoleUser {
		window = window[1:]
	}

	out := make([]Message, 0, len(head)+len(window))
	out = append(out, head...)
	out = append(out, window...)
	return out
}

// LastExchange 返回从最后一条 user 消息开始的尾部；没有 user 消息时返回最后一条。
func LastExchange(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	start := len(msgs) - 1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			start = i
			break
		}
	}
	return append([]Message(nil), msgs[start:]...)
}
