// Package errors 提供统一错误辅助，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（可按需扩展错误码）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrTimeout / ErrConnection 标记瞬时失败，供 engine 的 retry wrapper 判定可重试
	ErrTimeout    = errors.New("timeout")
	ErrConnection = errors.New("connection failure")
	// ErrRateLimited 标记 LLM Provider 限流（HTTP 429），由 llm 客户端内部按固定梯度重试
	ErrRateLimited = errors.New("rate limited")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsTransient 判断错误是否为瞬时失败（超时/连接类），可被 backoff 重试
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}
