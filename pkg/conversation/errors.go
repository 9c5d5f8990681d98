package conversation

import (
	"errors"
	"fmt"
)

// 管线各阶段的错误哨兵值，调用方通过 errors.Is 判断失败发生在哪一步。
var (
	// ErrRewriteFailed 表示改写模型调用失败（空历史跳过改写不属于失败）。
	ErrRewriteFailed = errors.New("rewrite failed")
	// ErrRetrievalFailed 表示向量检索失败。空结果不是错误。
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrCompositionFailed 表示生成回答失败，或在提交历史前被取消。
	ErrCompositionFailed = errors.New("composition failed")
	// ErrSessionNotFound 表示只读查询了一个从未创建过的会话。
	ErrSessionNotFound = errors.New("session not found")
)

// Stage 标识管线中的委托调用阶段。
type Stage string

const (
	StageRewrite  Stage = "rewrite"
	StageRetrieve Stage = "retrieve"
	StageCompose  Stage = "compose"
)

// sentinel 返回阶段对应的哨兵错误。
func (s Stage) sentinel() error {
	switch s {
	case StageRewrite:
		return ErrRewriteFailed
	case StageRetrieve:
		return ErrRetrievalFailed
	case StageCompose:
		return ErrCompositionFailed
	default:
		return nil
	}
}

// StageError 携带失败阶段与底层原因。
type StageError struct {
	Stage Stage
	State State // 失败前所处的状态，例如回答已生成但未提交时为 StateAnswered
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.sentinel(), e.Err)
}

// Unwrap 返回底层原因，便于 errors.Is(err, context.Canceled) 之类的判断。
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrRewriteFailed) 等判断命中对应阶段。
func (e *StageError) Is(target error) bool {
	return target != nil && target == e.Stage.sentinel()
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
