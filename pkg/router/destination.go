// Package router 把用户问题分类到固定的专家提示，再交给模型回答。
package router

import "strings"

// Destination 是路由目标，集合是封闭的。
type Destination string

const (
	DestinationPhysics Destination = "physics"
	DestinationPoem    Destination = "poem"
	DestinationHistory Destination = "history"
	// DestinationDefault 表示没有合适的专家，原样把问题交给模型。
	DestinationDefault Destination = "default"
)

// Experts 返回可被分类器选中的目标，顺序即路由 schema 中 enum 的顺序。
func Experts() []Destination {
	return []Destination{DestinationPhysics, DestinationPoem, DestinationHistory}
}

// ParseDestination 解析目标名称，未知值返回 DestinationDefault 与 false。
func ParseDestination(s string) (Destination, bool) {
	switch d := Destination(strings.ToLower(strings.TrimSpace(s))); d {
	case DestinationPhysics, DestinationPoem, DestinationHistory:
		return d, true
	default:
		return DestinationDefault, false
	}
}

// Description 返回目标的用途说明，用于工具描述。
func (d Destination) Description() string {
	switch d {
	case DestinationPhysics:
		return "Good for answering questions about physics"
	case DestinationPoem:
		return "Good for writing poems"
	case DestinationHistory:
		return "Good for answering history questions"
	default:
		return "General purpose answer"
	}
}
