package conversation

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// errEmptyResponse 表示模型返回了空的候选列表。
var errEmptyResponse = errors.New("empty response from llm")

// generateText 调用模型并取第一个候选的文本。
func generateText(ctx context.Context, model llms.Model, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
