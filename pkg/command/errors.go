package command

import "errors"

var (
	// ErrServiceUnavailable 表示命令依赖的服务（历史、路由）没有注入。
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrNoExecutionContext 表示命令不是经由 Manager 执行的。
	ErrNoExecutionContext = errors.New("execution context missing")
)
