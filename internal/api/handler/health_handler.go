package handler

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// HealthChecker 返回各依赖组件的连通性
type HealthChecker interface {
	Health(ctx context.Context) map[string]error
}

// HealthHandler GET /health
type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 3 * time.Second}
}

func (h *HealthHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	if h.checker == nil {
		c.JSON(consts.StatusOK, utils.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	components := utils.H{}
	healthy := true
	for name, err := range h.checker.Health(ctx) {
		if err != nil {
			healthy = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	if !healthy {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"status": "degraded", "components": components})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "components": components})
}
