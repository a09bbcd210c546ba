package model

import "time"

// BaseModel 通用审计字段（所有业务模型嵌入）
// 时间戳由 GORM autoCreateTime/autoUpdateTime 写入，插入语句无需 RETURNING
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null"        json:"created_at"`
	CreatedBy *string   `gorm:"type:varchar(36)" json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null"        json:"updated_at"`
	UpdatedBy *string   `gorm:"type:varchar(36)" json:"updated_by,omitempty"`
}
