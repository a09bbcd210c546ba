package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dorm-track/backend/internal/dto"
)

// Pinger Redis 探活
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler 健康检查
// Redis 为可选依赖，不可用时整体状态为 degraded 但仍返回 200
type HealthHandler struct {
	db    *gorm.DB
	redis Pinger
}

// NewHealthHandler 创建 HealthHandler，redis 可为 nil
func NewHealthHandler(db *gorm.DB, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Check GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Database: "up", Redis: "disabled"}

	if err := h.pingDB(ctx); err != nil {
		resp.Status, resp.Database = "down", "down"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			resp.Redis = "down"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		} else {
			resp.Redis = "up"
		}
	}

	status := http.StatusOK
	if resp.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	if h.db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
