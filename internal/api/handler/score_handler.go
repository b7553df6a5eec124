package handler

import (
	"context"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/parser"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// ScoreReader 已持久化评分的查询
type ScoreReader interface {
	GetCandidateScore(ctx context.Context, applicationID string) (*types.CandidateScore, error)
}

// ScoreHandler 评分查询与反馈报告
type ScoreHandler struct {
	scores ScoreReader
	logger zerolog.Logger
}

func NewScoreHandler(scores ScoreReader) *ScoreHandler {
	return &ScoreHandler{scores: scores, logger: logger.Component("score_handler")}
}

// HandleGetScore GET /api/v1/scores/:application_id
func (h *ScoreHandler) HandleGetScore(ctx context.Context, c *app.RequestContext) {
	score, ok := h.load(ctx, c)
	if !ok {
		return
	}
	c.JSON(consts.StatusOK, score)
}

// HandleGetReport 返回面向招聘方的文本反馈报告
// GET /api/v1/scores/:application_id/report
func (h *ScoreHandler) HandleGetReport(ctx context.Context, c *app.RequestContext) {
	score, ok := h.load(ctx, c)
	if !ok {
		return
	}
	if score.QualitativeEvaluation == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "该申请没有定性评估结果"})
		return
	}
	report := parser.GenerateFeedbackReport(score.QualitativeEvaluation, score.CandidateName, score.JobTitle)
	if string(c.Request.Header.Peek("Accept")) == "text/plain" {
		c.String(consts.StatusOK, report)
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"application_id":  score.ApplicationID,
		"candidate_name":  score.CandidateName,
		"final_ats_score": score.FinalATSScore,
		"report":          report,
	})
}

func (h *ScoreHandler) load(ctx context.Context, c *app.RequestContext) (*types.CandidateScore, bool) {
	appID := c.Param("application_id")
	if appID == "" {
		badRequest(c, "application_id 不能为空")
		return nil, false
	}
	score, err := h.scores.GetCandidateScore(ctx, appID)
	if err != nil {
		h.logger.Warn().Err(err).Str("application_id", appID).Msg("查询评分失败")
		writeError(ctx, c, err)
		return nil, false
	}
	return score, true
}
