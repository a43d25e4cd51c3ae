package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"

	"adequa-rag/internal/indexer"
	"adequa-rag/internal/processor"
	"adequa-rag/internal/storage"
	"adequa-rag/internal/tracing"
)

// StatusFor 错误到 HTTP 状态码的映射
func StatusFor(err error) int {
	var cfgErr *processor.ConfigurationError
	switch {
	case errors.Is(err, indexer.ErrIndexNotFound), errors.Is(err, storage.ErrRunNotFound):
		return consts.StatusNotFound
	case errors.Is(err, processor.ErrInvalidRequest), errors.Is(err, processor.ErrNoValidResumes):
		return consts.StatusBadRequest
	case errors.As(err, &cfgErr):
		return consts.StatusServiceUnavailable
	case errors.Is(err, processor.ErrUploadLimit), errors.Is(err, processor.ErrUploadInProgress):
		return consts.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}

func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := StatusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	body := utils.H{"error": err.Error()}
	var nf *indexer.IndexNotFoundError
	if errors.As(err, &nf) {
		body["available_indexes"] = nf.Available
	}
	if status == consts.StatusInternalServerError {
		body["error"] = "内部错误"
	}
	c.JSON(status, body)
}

// unavailable 服务不可用一律按配置错误返回 503
func unavailable(component string, err error) error {
	var cfgErr *processor.ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &processor.ConfigurationError{Component: component, Err: err}
}
