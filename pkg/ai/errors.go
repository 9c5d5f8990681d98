package ai

import "errors"

var (
	// ErrInvalidConfig 表示配置文件内容不合法。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrModelNotFound 表示配置中没有该名称的模型。
	ErrModelNotFound = errors.New("model not found in configuration")
	// ErrUnsupportedProvider 表示不支持的模型供应商。
	ErrUnsupportedProvider = errors.New("unsupported provider")
)
