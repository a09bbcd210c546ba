package handler

import "dorm-track/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	RoomAllocation *RoomAllocationHandler
	Export         *ExportHandler
	Health         *HealthHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service, health *HealthHandler) *Handler {
	return &Handler{
		RoomAllocation: NewRoomAllocationHandler(svc.RoomAllocation),
		Export:         NewExportHandler(svc.Export),
		Health:         health,
	}
}
