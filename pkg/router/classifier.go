package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/xeipuuv/gojsonschema"
)

// RouteToolName 是分类器要求模型调用的工具名。
const RouteToolName = "route"

// DefaultRouteSystem 是分类阶段的系统指令。
const DefaultRouteSystem = "Route the user's query to either the physics, poem, or history expert."

// ErrClassifyFailed 表示分类模型调用失败。无法识别的分类结果不算失败。
var ErrClassifyFailed = errors.New("classify failed")

// routingSchema 根据可选目标生成 JSON Schema。
func routingSchema(dests []Destination) map[string]any {
	names := make([]string, 0, len(dests))
	for _, d := range dests {
		names = append(names, string(d))
	}
	return map[string]any{
		"title":       "destination",
		"description": "name of the destination chain",
		"type":        "object",
		"properties": map[string]any{
			"destination": map[string]any{
				"type": "string",
				"enum": names,
			},
		},
		"required": []string{"destination"},
	}
}

// Classifier 通过工具调用得到结构化的路由结果，并用 JSON Schema 校验。
type Classifier struct {
	model  llms.Model
	system string
	tool   llms.Tool
	schema *gojsonschema.Schema
	logger zerolog.Logger
}

// ClassifierOption 配置 Classifier。
type ClassifierOption func(*Classifier)

// WithRouteSystem 替换默认的分类指令。
func WithRouteSystem(system string) ClassifierOption {
	return func(c *Classifier) {
		c.system = system
	}
}

// WithClassifierLogger 注入日志实例。
func WithClassifierLogger(logger zerolog.Logger) ClassifierOption {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// NewClassifier 创建分类器。
func NewClassifier(model llms.Model, opts ...ClassifierOption) (*Classifier, error) {
	schema := routingSchema(Experts())
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile routing schema: %w", err)
	}

	c := &Classifier{
		model:  model,
		system: DefaultRouteSystem,
		tool: llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        RouteToolName,
				Description: "Select the expert that should handle the user's query",
				Parameters:  schema,
			},
		},
		schema: compiled,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Classify 返回问题对应的目标。模型失败返回 ErrClassifyFailed；
// 输出不符合 schema 或目标未知时返回 DestinationDefault。
func (c *Classifier) Classify(ctx context.Context, input string) (Destination, error) {
	if c.model == nil {
		return DestinationDefault, fmt.Errorf("%w: llm not initialized", ErrClassifyFailed)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.system),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{c.tool}))
	if err != nil {
		return DestinationDefault, fmt.Errorf("%w: %w", ErrClassifyFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return DestinationDefault, fmt.Errorf("%w: empty response from llm", ErrClassifyFailed)
	}

	raw := routeArguments(resp.Choices[0])
	dest, err := c.decode(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("raw", raw).Msg("unroutable classification, using default")
		return DestinationDefault, nil
	}
	return dest, nil
}

// routeArguments 优先取 route 工具的参数，没有工具调用时退回文本内容。
func routeArguments(choice *llms.ContentChoice) string {
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == RouteToolName {
			return tc.FunctionCall.Arguments
		}
	}
	if choice.FuncCall != nil && choice.FuncCall.Name == RouteToolName {
		return choice.FuncCall.Arguments
	}
	return strings.TrimSpace(choice.Content)
}

// decode 校验并解析分类结果。纯文本（如 "poem"）会先包装成对象再校验。
func (c *Classifier) decode(raw string) (Destination, error) {
	if raw == "" {
		return DestinationDefault, errors.New("empty classification")
	}

	data := []byte(raw)
	if !json.Valid(data) {
		wrapped, err := json.Marshal(map[string]string{"destination": strings.ToLower(raw)})
		if err != nil {
			return DestinationDefault, err
		}
		data = wrapped
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return DestinationDefault, fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return DestinationDefault, fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	var out struct {
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return DestinationDefault, err
	}
	dest, ok := ParseDestination(out.Destination)
	if !ok {
		return DestinationDefault, fmt.Errorf("unknown destination %q", out.Destination)
	}
	return dest, nil
}
