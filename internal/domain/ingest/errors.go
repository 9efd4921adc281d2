package ingest

import (
	"errors"
	"fmt"
)

// ErrFileLocked 同名文件正在被其他 worker 处理。
// 调用方应延迟重新入队，不计入重试次数。
var ErrFileLocked = errors.New("file is locked by another worker")

// RetryableError 可重试错误：网络、下载、解析、零分块、向量写入等瞬时失败。
// worker 据此走退避重试；非此类型的错误直接判定为终态 FAILED。
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable 包装为可重试错误
func Retryable(format string, args ...interface{}) error {
	return &RetryableError{Err: fmt.Errorf(format, args...)}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
