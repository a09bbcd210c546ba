package model

// Student 学生及其居住指针
// RoomID 非空当且仅当存在一条 active 分配；HostelID/RoomNumber 为其冗余副本
type Student struct {
	StudentID     string  `gorm:"type:varchar(36);primaryKey"     json:"student_id"`
	InstitutionID string  `gorm:"type:varchar(36);not null;index" json:"institution_id"`
	StudentNumber string  `gorm:"type:varchar(50);not null"       json:"student_number"`
	Name          string  `gorm:"type:varchar(100);not null"      json:"name"`
	HostelID      *string `gorm:"type:varchar(36)"                json:"hostel_id"`
	RoomID        *string `gorm:"type:varchar(36)"                json:"room_id"`
	RoomNumber    *string `gorm:"type:varchar(20)"                json:"room_number"`
	BaseModel
}

func (Student) TableName() string { return "students" }

// HasResidency 居住指针是否已设置
func (s *Student) HasResidency() bool {
	return s.RoomID != nil && *s.RoomID != ""
}
