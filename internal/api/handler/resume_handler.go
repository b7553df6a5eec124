package handler

import (
	"context"
	"time"

	"smarthire-ats/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

const (
	defaultResumeLinkTTL = 15 * time.Minute
	maxResumeLinkTTL     = 24 * time.Hour
)

// ResumeLinker 生成简历原文件的临时下载链接
type ResumeLinker interface {
	ResumeURL(ctx context.Context, applicationID string, expiry time.Duration) (string, error)
}

// ResumeHandler 简历原文件访问
type ResumeHandler struct {
	links  ResumeLinker
	logger zerolog.Logger
}

func NewResumeHandler(links ResumeLinker) *ResumeHandler {
	return &ResumeHandler{links: links, logger: logger.Component("resume_handler")}
}

// HandleResumeURL GET /api/v1/applications/:application_id/resume?expires=15m
func (h *ResumeHandler) HandleResumeURL(ctx context.Context, c *app.RequestContext) {
	appID := c.Param("application_id")
	if appID == "" {
		badRequest(c, "application_id 不能为空")
		return
	}
	ttl := defaultResumeLinkTTL
	if raw := c.Query("expires"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			badRequest(c, "expires 必须是正的时长，例如 15m")
			return
		}
		ttl = d
	}
	if ttl > maxResumeLinkTTL {
		ttl = maxResumeLinkTTL
	}

	url, err := h.links.ResumeURL(ctx, appID, ttl)
	if err != nil {
		h.logger.Warn().Err(err).Str("application_id", appID).Msg("生成简历链接失败")
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{
		"application_id": appID,
		"url":            url,
		"expires_in":     int(ttl.Seconds()),
	})
}
