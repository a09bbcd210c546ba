package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Hostel         HostelRepository
	Room           RoomRepository
	Student        StudentRepository
	RoomAllocation RoomAllocationRepository
	Tx             Transactor
}

// Transactor 在同一数据库事务中执行 fn；fn 返回错误时整体回滚
type Transactor interface {
	Transaction(ctx context.Context, fn func(txRepo *Repository) error) error
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	r := newRepository(db)
	r.Tx = &gormTransactor{db: db}
	return r
}

func newRepository(db *gorm.DB) *Repository {
	return &Repository{
		Hostel:         NewHostelRepo(db),
		Room:           NewRoomRepo(db),
		Student:        NewStudentRepo(db),
		RoomAllocation: NewRoomAllocationRepo(db),
	}
}

// ── gorm 事务实现 ──

type gormTransactor struct {
	db *gorm.DB
}

func (t *gormTransactor) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepository(tx))
	})
}
