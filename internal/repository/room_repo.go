package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dorm-track/backend/internal/model"
	pkgerrors "dorm-track/backend/pkg/errors"
)

// RoomRepository 房间库存数据访问接口
// 所有读取都以机构（租户）为作用域，通过 hostels 关联过滤
type RoomRepository interface {
	GetByID(ctx context.Context, institutionID, roomID string) (*model.Room, error)
	// GetByIDForUpdate 读取并对房间行加 FOR UPDATE 锁，必须在事务中调用
	GetByIDForUpdate(ctx context.Context, institutionID, roomID string) (*model.Room, error)
	// ListAvailable 未维修且未满的房间，按入住数升序、房间 ID 升序
	ListAvailable(ctx context.Context, institutionID string) ([]model.Room, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]model.Room, error)
	// IncrementOccupancy 条件自增入住数并重新推导状态
	// 房间已满、维修中或不存在时返回 ErrConditionNotMet
	IncrementOccupancy(ctx context.Context, roomID string) error
}

type roomRepo struct {
	db *gorm.DB
}

func NewRoomRepo(db *gorm.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) scoped(ctx context.Context, institutionID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Joins("JOIN hostels ON hostels.hostel_id = rooms.hostel_id").
		Where("hostels.institution_id = ?", institutionID)
}

func (r *roomRepo) GetByID(ctx context.Context, institutionID, roomID string) (*model.Room, error) {
	var room model.Room
	err := r.scoped(ctx, institutionID).
		Preload("Hostel").
		Where("rooms.room_id = ?", roomID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) GetByIDForUpdate(ctx context.Context, institutionID, roomID string) (*model.Room, error) {
	var room model.Room
	err := r.scoped(ctx, institutionID).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "rooms"}}).
		Where("rooms.room_id = ?", roomID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) ListAvailable(ctx context.Context, institutionID string) ([]model.Room, error) {
	var rooms []model.Room
	err := r.scoped(ctx, institutionID).
		Preload("Hostel").
		Where("rooms.status <> ? AND rooms.current_occupancy < rooms.capacity", model.RoomStatusMaintenance).
		Order("rooms.current_occupancy ASC").
		Order("rooms.room_id ASC").
		Find(&rooms).Error
	return rooms, err
}

func (r *roomRepo) ListByInstitution(ctx context.Context, institutionID string) ([]model.Room, error) {
	var rooms []model.Room
	err := r.scoped(ctx, institutionID).
		Order("rooms.hostel_id ASC").
		Order("rooms.room_number ASC").
		Find(&rooms).Error
	return rooms, err
}

func (r *roomRepo) IncrementOccupancy(ctx context.Context, roomID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Room{}).
		Where("room_id = ? AND current_occupancy < capacity AND status <> ?", roomID, model.RoomStatusMaintenance).
		Updates(map[string]interface{}{
			"current_occupancy": gorm.Expr("current_occupancy + 1"),
			"status": gorm.Expr("CASE WHEN current_occupancy + 1 >= capacity THEN ? ELSE ? END",
				model.RoomStatusOccupied, model.RoomStatusAvailable),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		if pkgerrors.IsCheckViolation(result.Error) {
			return pkgerrors.ErrConditionNotMet
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}
