package model

import "time"

// 分配记录状态；只能从 active 流向 completed/cancelled，不可回到 active
const (
	AllocationStatusActive    = "active"
	AllocationStatusCompleted = "completed"
	AllocationStatusCancelled = "cancelled"
)

// RoomAllocation 分配台账记录
type RoomAllocation struct {
	AllocationID string     `gorm:"type:varchar(36);primaryKey"     json:"allocation_id"`
	StudentID    string     `gorm:"type:varchar(36);not null;index" json:"student_id"`
	RoomID       string     `gorm:"type:varchar(36);not null;index" json:"room_id"`
	HostelID     string     `gorm:"type:varchar(36);not null"       json:"hostel_id"`
	StartDate    time.Time  `gorm:"type:date;not null"              json:"start_date"`
	EndDate      *time.Time `gorm:"type:date"                       json:"end_date,omitempty"`
	Status       string     `gorm:"type:varchar(20);not null;default:active" json:"status"`
	BaseModel

	Student *Student `gorm:"foreignKey:StudentID;references:StudentID" json:"student,omitempty"`
	Room    *Room    `gorm:"foreignKey:RoomID;references:RoomID"       json:"room,omitempty"`
	Hostel  *Hostel  `gorm:"foreignKey:HostelID;references:HostelID"   json:"hostel,omitempty"`
}

func (RoomAllocation) TableName() string { return "room_allocations" }
