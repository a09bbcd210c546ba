package service

import (
	"go.uber.org/zap"

	"dorm-track/backend/config"
	"dorm-track/backend/internal/repository"
	"dorm-track/backend/pkg/metrics"
)

// Service 所有 Service 的聚合入口
type Service struct {
	RoomAllocation RoomAllocationService
	Export         ExportService
}

// NewService 创建 Service 聚合
// locker 为 nil 时自动分配不使用批次锁
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	locker BatchLocker,
	rec *metrics.Recorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		RoomAllocation: NewRoomAllocationService(repo, cfg.Allocation, locker, rec, logger),
		Export:         NewExportService(repo, logger),
	}
}
