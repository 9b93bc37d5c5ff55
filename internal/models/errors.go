package models

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound 任务记录不存在
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidJobStatus 无效的任务状态转换
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrJobNotReady 任务尚未完成，没有可下载的压缩包
	ErrJobNotReady = errors.New("job archive not ready")
)

// ErrorKind 流水线错误类型
type ErrorKind string

const (
	// KindInvalidInputType 文档或表格格式不被接受
	KindInvalidInputType ErrorKind = "InvalidInputType"
	// KindInvalidPattern 匹配规则无法编译或没有捕获组
	KindInvalidPattern ErrorKind = "InvalidPattern"
	// KindMissingColumns 表格缺少请求的列
	KindMissingColumns ErrorKind = "MissingColumns"
	// KindTableParse 表格无法读取
	KindTableParse ErrorKind = "TableParseError"
	// KindDocumentParse 文档无法读取
	KindDocumentParse ErrorKind = "DocumentParseError"
	// KindInternal 其他意外错误
	KindInternal ErrorKind = "Internal"
)

// PipelineError 拆分流水线的结构化错误
type PipelineError struct {
	Kind    ErrorKind // 错误类型
	Message string    // 面向调用方的消息
	Err     error     // 原始错误
}

// Error 实现error接口
func (e *PipelineError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap 返回原始错误
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建流水线错误
func NewPipelineError(kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误对应的类型，非流水线错误视为 Internal
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
