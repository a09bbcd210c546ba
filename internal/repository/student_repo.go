package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"dorm-track/backend/internal/model"
	pkgerrors "dorm-track/backend/pkg/errors"
)

// StudentRepository 学生与居住指针数据访问接口
type StudentRepository interface {
	GetByID(ctx context.Context, institutionID, studentID string) (*model.Student, error)
	// ListUnassigned 居住指针为空的学生，按学号、学生 ID 升序
	ListUnassigned(ctx context.Context, institutionID string) ([]model.Student, error)
	// SetResidency 设置居住指针；已指向同一房间时视为成功
	// 学生不存在或已指向其他房间时返回 ErrConditionNotMet
	SetResidency(ctx context.Context, studentID, hostelID, roomID, roomNumber string) error
	// ClearResidency 清空居住指针，重复调用无副作用
	ClearResidency(ctx context.Context, studentID string) error
}

type studentRepo struct {
	db *gorm.DB
}

func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) GetByID(ctx context.Context, institutionID, studentID string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND institution_id = ?", studentID, institutionID).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) ListUnassigned(ctx context.Context, institutionID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("institution_id = ? AND room_id IS NULL", institutionID).
		Order("student_number ASC").
		Order("student_id ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) SetResidency(ctx context.Context, studentID, hostelID, roomID, roomNumber string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ? AND (room_id IS NULL OR room_id = ?)", studentID, roomID).
		Updates(map[string]interface{}{
			"hostel_id":   hostelID,
			"room_id":     roomID,
			"room_number": roomNumber,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *studentRepo) ClearResidency(ctx context.Context, studentID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ?", studentID).
		Updates(map[string]interface{}{
			"hostel_id":   nil,
			"room_id":     nil,
			"room_number": nil,
			"updated_at":  time.Now(),
		}).Error
}
