package types

import (
	"errors"
	"fmt"
)

// 错误分类，调用方通过 errors.Is 判断
var (
	ErrConfiguration      = errors.New("配置错误")
	ErrRetrieval          = errors.New("文档检索失败")
	ErrExternalCapability = errors.New("外部能力调用失败")
	ErrMalformedResponse  = errors.New("模型响应格式错误")
	ErrPersistence        = errors.New("持久化失败")
)

// ConfigurationError 配置参数非法，启动阶段即返回
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError 创建配置错误
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
