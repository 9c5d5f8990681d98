package dispatch

import (
	"context"
	"strings"
)

// Matcher 定义路由匹配逻辑。
// 返回 true 表示该路由应该处理此 Request。
type Matcher func(req Request) bool

// Route 定义单条路由规则。
type Route struct {
	Name    string
	Matcher Matcher
	Handler Handler
}

// Chain 按顺序检查路由，一旦匹配成功就移交给对应的 Handler 并停止后续匹配。
// 所有路由都不匹配时调用默认 Handler。
type Chain struct {
	routes         []Route
	defaultHandler Handler
}

// NewChain 创建一个新的责任链路由器。
func NewChain(defaultHandler Handler) *Chain {
	return &Chain{
		routes:         make([]Route, 0),
		defaultHandler: defaultHandler,
	}
}

// AddRoute 添加一条路由规则。
func (c *Chain) AddRoute(name string, matcher Matcher, handler Handler) {
	c.routes = append(c.routes, Route{
		Name:    name,
		Matcher: matcher,
		Handler: handler,
	})
}

// Handle 实现 Handler 接口。
func (c *Chain) Handle(ctx context.Context, req Request) <-chan Chunk {
	for _, route := range c.routes {
		if route.Matcher(req) {
			return route.Handler.Handle(ctx, req)
		}
	}
	if c.defaultHandler != nil {
		return c.defaultHandler.Handle(ctx, req)
	}
	// 既无匹配也无默认处理器，返回空流 (静默)
	return nil
}

// MatchPrefix 返回一个匹配文本前缀的 Matcher，忽略开头空白。
func MatchPrefix(prefix string) Matcher {
	return func(r Request) bool {
		return strings.HasPrefix(strings.TrimSpace(r.Text), prefix)
	}
}

// MatchAny 返回一个总是匹配的 Matcher。
func MatchAny() Matcher {
	return func(Request) bool {
		return true
	}
}
