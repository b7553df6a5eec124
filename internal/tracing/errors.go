package tracing

import (
	"context"
	"errors"

	"smarthire-ats/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType 写入 span 的 error.type 属性，用于在追踪后端按类别过滤
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http"
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeRabbitMQ   ErrorType = "rabbitmq"
	ErrorTypeVectorDB   ErrorType = "vector_db"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRetrieval  ErrorType = "retrieval"
	ErrorTypeExternal   ErrorType = "external_capability"
	ErrorTypeMalformed  ErrorType = "malformed_response"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// ErrorTypeOf 按 types 中的错误分类推断 ErrorType
func ErrorTypeOf(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, types.ErrPersistence):
		return ErrorTypeDB
	case errors.Is(err, types.ErrRetrieval):
		return ErrorTypeRetrieval
	case errors.Is(err, types.ErrMalformedResponse):
		return ErrorTypeMalformed
	case errors.Is(err, types.ErrExternalCapability):
		return ErrorTypeExternal
	case errors.Is(err, types.ErrConfiguration):
		return ErrorTypeValidation
	default:
		return ErrorTypeInternal
	}
}

// RecordError 记录错误并把 span 置为 Error，attrs 为附加属性
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// RecordHTTPError 记录带状态码的错误，error.category 区分 4xx 与 5xx
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}
	category := "server_error"
	if statusCode >= 400 && statusCode < 500 {
		category = "client_error"
	}
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", category),
	)
}

// ConfirmFailure broker 未确认消息的原因
type ConfirmFailure string

const (
	ConfirmNack    ConfirmFailure = "nack"
	ConfirmTimeout ConfirmFailure = "timeout"
)

// RecordPublishUnconfirmed 记录事件未被 broker 确认，detail 为空时使用默认描述
func RecordPublishUnconfirmed(span trace.Span, messageID string, reason ConfirmFailure, detail string) {
	if span == nil {
		return
	}
	if detail == "" {
		detail = "message not acknowledged by broker"
		if reason == ConfirmTimeout {
			detail = "broker confirm timed out"
		}
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("error.message", detail),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", string(reason)),
		attribute.Bool("messaging.rabbitmq.confirmed", false),
	)
	span.SetStatus(codes.Error, detail)
}
