package handler

import (
	"context"
	"strings"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/types"
	"smarthire-ats/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

// WorkflowHandler 招聘流程接口
type WorkflowHandler struct {
	wf     *workflow.Workflow
	logger zerolog.Logger
}

func NewWorkflowHandler(wf *workflow.Workflow) *WorkflowHandler {
	return &WorkflowHandler{wf: wf, logger: logger.Component("workflow_handler")}
}

// ScheduleRequest 面试安排请求
type ScheduleRequest struct {
	JobRole   string                 `json:"job_role"`
	Shortlist []types.ShortlistEntry `json:"shortlist"`
}

// ScoreInterviewsRequest 面试评分请求
type ScoreInterviewsRequest struct {
	Interviews []types.ScheduledInterview `json:"interviews"`
}

func (h *WorkflowHandler) bindRequest(c *app.RequestContext) (workflow.Request, bool) {
	var req workflow.Request
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体格式错误: "+err.Error())
		return req, false
	}
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.JobRole = strings.TrimSpace(req.JobRole)
	if req.CompanyName == "" || req.JobRole == "" {
		badRequest(c, "company_name 和 job_role 不能为空")
		return req, false
	}
	return req, true
}

// runStage 执行单个阶段并合并结果，阶段错误记入状态
func (h *WorkflowHandler) runStage(ctx context.Context, st *workflow.WorkflowState, name string, stage workflow.Stage) {
	update, err := stage(ctx, st)
	st.Apply(update)
	if err != nil {
		h.logger.Warn().Err(err).Str("stage", name).Msg("流程阶段失败")
		st.Errors = append(st.Errors, name+": "+err.Error())
	}
}

// HandleRun 执行完整招聘流程
// POST /api/v1/workflow/run
func (h *WorkflowHandler) HandleRun(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	st, err := h.wf.Run(ctx, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, st)
}

// HandleGenerateJD 只生成 JD 并给出审批结果
// POST /api/v1/workflow/jd
func (h *WorkflowHandler) HandleGenerateJD(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	st := h.wf.NewState(req)
	h.runStage(ctx, st, "generate_jd", h.wf.GenerateJD)
	h.runStage(ctx, st, "approve", h.wf.Approve)

	c.JSON(consts.StatusOK, utils.H{
		"company_name":     st.CompanyName,
		"job_role":         st.JobRole,
		"location":         st.Location,
		"experience_level": st.ExperienceLevel,
		"employment_type":  st.EmploymentType,
		"job_description":  st.JobDescription,
		"approved":         st.Approved,
		"errors":           st.Errors,
	})
}

// HandleSchedule 为给定的候选名单安排面试
// POST /api/v1/workflow/schedule
func (h *WorkflowHandler) HandleSchedule(ctx context.Context, c *app.RequestContext) {
	var req ScheduleRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体格式错误: "+err.Error())
		return
	}
	st := &workflow.WorkflowState{JobRole: req.JobRole, Shortlist: req.Shortlist}
	h.runStage(ctx, st, "schedule_interviews", h.wf.ScheduleInterviews)

	c.JSON(consts.StatusOK, utils.H{
		"interviews": st.Interviews,
		"count":      len(st.Interviews),
		"errors":     st.Errors,
	})
}

// HandleScoreInterviews 对已安排的面试评分，返回可发放录用的候选人
// POST /api/v1/workflow/interviews/score
func (h *WorkflowHandler) HandleScoreInterviews(ctx context.Context, c *app.RequestContext) {
	var req ScoreInterviewsRequest
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "请求体格式错误: "+err.Error())
		return
	}
	st := &workflow.WorkflowState{Interviews: req.Interviews}
	h.runStage(ctx, st, "score_interviews", h.wf.ScoreInterviews)

	c.JSON(consts.StatusOK, utils.H{
		"interview_results": st.InterviewResults,
		"offer_candidates":  st.OfferCandidates,
		"passed":            len(st.OfferCandidates),
		"total":             len(st.InterviewResults),
		"errors":            st.Errors,
	})
}
