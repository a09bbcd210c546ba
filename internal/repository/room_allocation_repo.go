package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dorm-track/backend/internal/model"
	pkgerrors "dorm-track/backend/pkg/errors"
)

// RoomAllocationRepository 分配台账数据访问接口
type RoomAllocationRepository interface {
	// Create 插入分配记录；违反“每个学生至多一条 active”时返回 ErrDuplicate
	Create(ctx context.Context, allocation *model.RoomAllocation) error
	// Delete 物理删除，仅用于补偿同一次操作中刚创建的记录；重复调用无副作用
	Delete(ctx context.Context, allocationID string) error
	GetActiveByStudent(ctx context.Context, studentID string) (*model.RoomAllocation, error)
	List(ctx context.Context, filter AllocationFilter, offset, limit int) ([]model.RoomAllocation, int64, error)
	ListAll(ctx context.Context, institutionID string) ([]model.RoomAllocation, error)
}

// AllocationFilter 分配列表过滤条件
type AllocationFilter struct {
	InstitutionID string
	Status        string
}

type roomAllocationRepo struct {
	db *gorm.DB
}

func NewRoomAllocationRepo(db *gorm.DB) RoomAllocationRepository {
	return &roomAllocationRepo{db: db}
}

func (r *roomAllocationRepo) Create(ctx context.Context, allocation *model.RoomAllocation) error {
	err := r.db.WithContext(ctx).Create(allocation).Error
	if pkgerrors.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", pkgerrors.ErrDuplicate, err)
	}
	return err
}

func (r *roomAllocationRepo) Delete(ctx context.Context, allocationID string) error {
	return r.db.WithContext(ctx).
		Where("allocation_id = ?", allocationID).
		Delete(&model.RoomAllocation{}).Error
}

func (r *roomAllocationRepo) GetActiveByStudent(ctx context.Context, studentID string) (*model.RoomAllocation, error) {
	var allocation model.RoomAllocation
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, model.AllocationStatusActive).
		First(&allocation).Error
	if err != nil {
		return nil, err
	}
	return &allocation, nil
}

func (r *roomAllocationRepo) scoped(ctx context.Context, filter AllocationFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&model.RoomAllocation{}).
		Joins("JOIN hostels ON hostels.hostel_id = room_allocations.hostel_id").
		Where("hostels.institution_id = ?", filter.InstitutionID)
	if filter.Status != "" {
		query = query.Where("room_allocations.status = ?", filter.Status)
	}
	return query
}

func (r *roomAllocationRepo) List(ctx context.Context, filter AllocationFilter, offset, limit int) ([]model.RoomAllocation, int64, error) {
	var total int64
	if err := r.scoped(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var allocations []model.RoomAllocation
	err := r.scoped(ctx, filter).
		Preload("Student").
		Preload("Room").
		Preload("Hostel").
		Order("room_allocations.created_at DESC").
		Order("room_allocations.allocation_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&allocations).Error
	if err != nil {
		return nil, 0, err
	}
	return allocations, total, nil
}

func (r *roomAllocationRepo) ListAll(ctx context.Context, institutionID string) ([]model.RoomAllocation, error) {
	var allocations []model.RoomAllocation
	err := r.scoped(ctx, AllocationFilter{InstitutionID: institutionID}).
		Preload("Student").
		Preload("Room").
		Preload("Hostel").
		Order("room_allocations.start_date ASC").
		Order("room_allocations.allocation_id ASC").
		Find(&allocations).Error
	return allocations, err
}
