package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dorm-track/backend/config"
	"dorm-track/backend/internal/api/handler"
	"dorm-track/backend/internal/api/middleware"
	"dorm-track/backend/internal/api/validation"
	"dorm-track/backend/pkg/jwt"
	"dorm-track/backend/pkg/metrics"
	"dorm-track/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	validation.Register()

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 探活与指标 ──
	r.GET("/health", h.Health.Check)
	r.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 房间分配模块（管理员与宿管）
		allocations := v1.Group("/room-allocations")
		allocations.Use(middleware.RoleAuth("admin", "warden"))
		{
			allocations.GET("", h.RoomAllocation.ListAllocations)
			allocations.POST("", h.RoomAllocation.AssignRoom)
			allocations.POST("/auto-assign",
				middleware.RateLimit(rdb, cfg.RateLimit.AutoAssignLimit, cfg.RateLimit.AutoAssignWindow, logger),
				h.RoomAllocation.AutoAssign)
			allocations.GET("/unassigned-students", h.RoomAllocation.ListUnassignedStudents)
			allocations.GET("/available-rooms", h.RoomAllocation.ListAvailableRooms)
			allocations.GET("/export", h.Export.ExportAllocations)
		}
	}

	return r
}
