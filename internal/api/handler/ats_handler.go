package handler

import (
	"context"
	"errors"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// ATSService 评分流水线入口
type ATSService interface {
	ProcessApplication(ctx context.Context, applicationID string) (*types.CandidateScore, error)
	ProcessAll(ctx context.Context) (*processor.BatchSummary, error)
	ProcessByJob(ctx context.Context, jobID string) (*processor.BatchSummary, error)
}

// ATSHandler 处理评分请求
type ATSHandler struct {
	svc    ATSService
	logger zerolog.Logger
}

// NewATSHandler 创建评分处理器
func NewATSHandler(svc ATSService) *ATSHandler {
	return &ATSHandler{svc: svc, logger: logger.Component("ats_handler")}
}

// HandleProcessAll 处理全部申请
// POST /api/v1/ats/process
func (h *ATSHandler) HandleProcessAll(ctx context.Context, c *app.RequestContext) {
	summary, err := h.svc.ProcessAll(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("批量评分失败")
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, summary)
}

// HandleProcessJob 处理某岗位下的申请
// POST /api/v1/ats/process/job/:job_id
func (h *ATSHandler) HandleProcessJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		badRequest(c, "job_id 不能为空")
		return
	}
	summary, err := h.svc.ProcessByJob(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("岗位批量评分失败")
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, summary)
}

// HandleProcessApplication 处理单个申请。持久化失败时仍返回已计算的分数
// POST /api/v1/ats/process/:application_id
func (h *ATSHandler) HandleProcessApplication(ctx context.Context, c *app.RequestContext) {
	appID := c.Param("application_id")
	if appID == "" {
		badRequest(c, "application_id 不能为空")
		return
	}
	score, err := h.svc.ProcessApplication(ctx, appID)
	if err != nil {
		h.logger.Error().Err(err).Str("application_id", appID).Msg("申请评分失败")
		if score != nil && errors.Is(err, types.ErrPersistence) {
			body := errorBody(err)
			body["score"] = score
			body["persisted"] = false
			c.JSON(consts.StatusAccepted, body)
			return
		}
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"score": score, "persisted": true})
}
