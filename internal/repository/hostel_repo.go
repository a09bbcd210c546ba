package repository

import (
	"context"

	"gorm.io/gorm"

	"dorm-track/backend/internal/model"
)

// HostelRepository 宿舍楼数据访问接口
type HostelRepository interface {
	ListByInstitution(ctx context.Context, institutionID string) ([]model.Hostel, error)
}

type hostelRepo struct {
	db *gorm.DB
}

func NewHostelRepo(db *gorm.DB) HostelRepository {
	return &hostelRepo{db: db}
}

func (r *hostelRepo) ListByInstitution(ctx context.Context, institutionID string) ([]model.Hostel, error) {
	var hostels []model.Hostel
	err := r.db.WithContext(ctx).
		Where("institution_id = ?", institutionID).
		Order("name ASC").
		Find(&hostels).Error
	return hostels, err
}
