package conversation

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// Role 标识一条消息的发送方。集合是封闭的，本包不会产生 tool 角色的消息。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是会话中的一轮发言，创建后不可修改。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage 构造一条用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 构造一条助手消息。
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// SystemMessage 构造一条系统消息。
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ChatMessage 转换为 langchaingo 的 ChatMessage。
func (m Message) ChatMessage() llms.ChatMessage {
	switch m.Role {
	case RoleUser:
		return llms.HumanChatMessage{Content: m.Content}
	case RoleAssistant:
		return llms.AIChatMessage{Content: m.Content}
	default:
		return llms.SystemChatMessage{Content: m.Content}
	}
}

// MessageContent 转换为 GenerateContent 所需的消息片段。
func (m Message) MessageContent() llms.MessageContent {
	return llms.TextParts(m.ChatMessage().GetType(), m.Content)
}

// FromChatMessage 将 langchaingo 的消息映射回 Message。
// 只接受 human/ai/system 三种类型，其余类型返回 llms.ErrUnexpectedChatMessageType。
func FromChatMessage(msg llms.ChatMessage) (Message, error) {
	switch msg.GetType() {
	case llms.ChatMessageTypeHuman:
		return UserMessage(msg.GetContent()), nil
	case llms.ChatMessageTypeAI:
		return AssistantMessage(msg.GetContent()), nil
	case llms.ChatMessageTypeSystem:
		return SystemMessage(msg.GetContent()), nil
	default:
		return Message{}, fmt.Errorf("%w: %s", llms.ErrUnexpectedChatMessageType, msg.GetType())
	}
}

// toMessageContents 依次转换消息列表，保持顺序。
func toMessageContents(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageContent())
	}
	return out
}
