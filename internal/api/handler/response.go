package handler

import (
	"context"
	"errors"

	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/storage"
	"smarthire-ats/internal/tracing"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"
)

// statusFor 将错误分类映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		return consts.StatusNotFound
	case errors.Is(err, storage.ErrNoObjectStorage):
		return consts.StatusServiceUnavailable
	case errors.Is(err, processor.ErrApplicationBusy):
		return consts.StatusConflict
	case errors.Is(err, types.ErrRetrieval):
		return consts.StatusNotFound
	case errors.Is(err, types.ErrExternalCapability):
		return consts.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}

// errorBody 错误响应体。流水线错误额外带出阶段、申请ID与原因
func errorBody(err error) utils.H {
	body := utils.H{"error": err.Error()}
	if se := processor.AsStageError(err); se != nil {
		body["stage"] = se.Stage
		body["application_id"] = se.ApplicationID
		if se.BaseErr != nil {
			body["category"] = se.BaseErr.Error()
		}
		if se.Cause != nil {
			body["cause"] = se.Cause.Error()
		}
	}
	return body
}

// writeError 输出错误响应并记录到当前 span
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := statusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	c.JSON(status, errorBody(err))
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}
