package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType span 上 error.type 属性的取值
type ErrorType string

const (
	ErrorTypeHTTP       ErrorType = "http"
	ErrorTypeDB         ErrorType = "db"
	ErrorTypeRedis      ErrorType = "redis"
	ErrorTypeRabbitMQ   ErrorType = "rabbitmq"
	ErrorTypeBlob       ErrorType = "blob_store"
	ErrorTypeIndex      ErrorType = "vector_index"
	ErrorTypeLLM        ErrorType = "llm"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeCanceled   ErrorType = "canceled"
)

// RecordError 在 span 上记录错误并置为 Error 状态
// 超时和取消不论调用方传入什么类型都按 timeout / canceled 归类
func RecordError(span trace.Span, err error, typ ErrorType, extra ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		typ = ErrorTypeTimeout
	} else if errors.Is(err, context.Canceled) {
		typ = ErrorTypeCanceled
	}

	span.RecordError(err)
	attrs := append([]attribute.KeyValue{
		attribute.String("error.type", string(typ)),
		attribute.String("error.message", Clip(KindDefault, err.Error())),
	}, extra...)
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, err.Error())
}

// RecordHTTPError 记录返回给客户端的错误响应
func RecordHTTPError(span trace.Span, err error, status int) {
	class := "server_error"
	if status < 500 {
		class = "client_error"
	}
	RecordError(span, err, ErrorTypeHTTP,
		attribute.Int("http.status_code", status),
		attribute.String("error.category", class),
	)
}

// RecordNack 记录被重新入队的消息
func RecordNack(span trace.Span, messageID, reason string) {
	if span == nil {
		return
	}
	if reason == "" {
		reason = "message requeued"
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeRabbitMQ)),
		attribute.String("error.message", Clip(KindDefault, reason)),
		attribute.String("messaging.message_id", messageID),
		attribute.String("messaging.error_type", "nack"),
	)
	span.SetStatus(codes.Error, reason)
}
