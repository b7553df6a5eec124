package handler

import (
	"context"
	"strconv"

	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/storage"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

const (
	defaultSimilarLimit = 10
	maxSimilarLimit     = 100
)

// JobService 岗位查询与岗位向量
type JobService interface {
	ListActiveJobs(ctx context.Context) ([]types.ActiveJob, error)
	JobVector(ctx context.Context, job *types.JobPosting) ([]float64, error)
}

// JobReader 按ID读取岗位
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*types.JobPosting, error)
}

// CandidateSearcher 向量库中的相似候选人检索
type CandidateSearcher interface {
	SearchSimilarCandidates(ctx context.Context, jobVector []float64, jobID string, limit int) ([]storage.SimilarCandidate, error)
}

// JobHandler 岗位相关接口
type JobHandler struct {
	svc      JobService
	jobs     JobReader
	searcher CandidateSearcher
	logger   zerolog.Logger
}

// NewJobHandler 创建岗位处理器，searcher 为空时相似候选人接口返回 503
func NewJobHandler(svc JobService, jobs JobReader, searcher CandidateSearcher) *JobHandler {
	return &JobHandler{svc: svc, jobs: jobs, searcher: searcher, logger: logger.Component("job_handler")}
}

// HandleActiveJobs GET /api/v1/jobs/active
func (h *JobHandler) HandleActiveJobs(ctx context.Context, c *app.RequestContext) {
	jobs, err := h.svc.ListActiveJobs(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("查询活跃岗位失败")
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"jobs": jobs, "count": len(jobs)})
}

// HandleSimilarCandidates 按岗位描述向量检索最相近的候选人
// GET /api/v1/jobs/:job_id/similar?limit=10
func (h *JobHandler) HandleSimilarCandidates(ctx context.Context, c *app.RequestContext) {
	if h.searcher == nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"error": "向量库未配置"})
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		badRequest(c, "job_id 不能为空")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultSimilarLimit)))
	if err != nil || limit <= 0 {
		limit = defaultSimilarLimit
	}
	if limit > maxSimilarLimit {
		limit = maxSimilarLimit
	}

	job, err := h.jobs.GetJob(ctx, jobID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	vec, err := h.svc.JobVector(ctx, job)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("计算岗位向量失败")
		writeError(ctx, c, err)
		return
	}
	candidates, err := h.searcher.SearchSimilarCandidates(ctx, vec, jobID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("相似候选人检索失败")
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"job_id": jobID, "candidates": candidates, "count": len(candidates)})
}
