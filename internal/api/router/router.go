package router

import (
	"context"
	"crypto/subtle"
	"errors"

	"smarthire-ats/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// APIKeyHeader 调用方携带 API key 的请求头
const APIKeyHeader = "X-API-Key"

var errInvalidAPIKey = errors.New("invalid api key")

// Handlers 路由依赖的全部处理器
type Handlers struct {
	ATS      *handler.ATSHandler
	Scores   *handler.ScoreHandler
	Jobs     *handler.JobHandler
	Workflow *handler.WorkflowHandler
	Health   *handler.HealthHandler
	Resumes  *handler.ResumeHandler
}

// RegisterRoutes 注册 API 路由。apiKeys 为空时 /api/v1 不做鉴权
func RegisterRoutes(h *server.Hertz, hs Handlers, apiKeys []string) {
	h.GET("/health", hs.Health.HandleHealth)

	api := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(APIKeyAuth(apiKeys))
	}

	ats := api.Group("/ats")
	ats.POST("/process", hs.ATS.HandleProcessAll)
	ats.POST("/process/job/:job_id", hs.ATS.HandleProcessJob)
	ats.POST("/process/:application_id", hs.ATS.HandleProcessApplication)

	scores := api.Group("/scores")
	scores.GET("/:application_id", hs.Scores.HandleGetScore)
	scores.GET("/:application_id/report", hs.Scores.HandleGetReport)

	api.GET("/applications/:application_id/resume", hs.Resumes.HandleResumeURL)

	jobs := api.Group("/jobs")
	jobs.GET("/active", hs.Jobs.HandleActiveJobs)
	jobs.GET("/:job_id/similar", hs.Jobs.HandleSimilarCandidates)

	wf := api.Group("/workflow")
	wf.POST("/run", hs.Workflow.HandleRun)
	wf.POST("/jd", hs.Workflow.HandleGenerateJD)
	wf.POST("/schedule", hs.Workflow.HandleSchedule)
	wf.POST("/interviews/score", hs.Workflow.HandleScoreInterviews)
}

// APIKeyAuth 校验 X-API-Key 请求头
func APIKeyAuth(apiKeys []string) app.HandlerFunc {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		keys = append(keys, []byte(k))
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+APIKeyHeader, ""),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, _ error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "API key 无效或缺失"})
		}),
	)
}
