package processor

import (
	"errors"
	"fmt"
)

// 基础错误类型
var (
	ErrLLMNotConfigured = errors.New("LLM未配置")
	ErrUploadLimit      = errors.New("超出简历上传上限")
	ErrUploadInProgress = errors.New("该用户已有上传正在处理")
	ErrInvalidRequest   = errors.New("请求参数无效")
	ErrNoValidResumes   = errors.New("没有可用的简历")

	ErrIngestFailed  = errors.New("读取简历失败")
	ErrStoreFailed   = errors.New("保存原始文件失败")
	ErrChunkFailed   = errors.New("简历分块失败")
	ErrIndexFailed   = errors.New("构建向量索引失败")
	ErrPersistFailed = errors.New("保存上传记录失败")
)

// ConfigurationError 服务缺少必需的组件
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("配置错误 (%s): %v", e.Component, e.Err)
	}
	return fmt.Sprintf("配置错误 (%s)", e.Component)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ProcessingError 包含操作名和详细信息的处理错误
type ProcessingError struct {
	Op      string
	BaseErr error
	Detail  string
}

func (e *ProcessingError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s): %s", e.BaseErr, e.Op, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
}

func (e *ProcessingError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ProcessingError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func newProcessingError(op string, base error, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &ProcessingError{Op: op, BaseErr: base, Detail: detail}
}
