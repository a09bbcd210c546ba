package model

// Hostel 宿舍楼，提供租户作用域与视图展示字段
type Hostel struct {
	HostelID      string `gorm:"type:varchar(36);primaryKey"    json:"hostel_id"`
	InstitutionID string `gorm:"type:varchar(36);not null;index" json:"institution_id"`
	Name          string `gorm:"type:varchar(100);not null"     json:"name"`
	BaseModel
}

func (Hostel) TableName() string { return "hostels" }
