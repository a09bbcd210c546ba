package model

// 房间状态
// available/occupied 由入住数推导；maintenance 由外部设置，重新推导时保留
const (
	RoomStatusAvailable   = "available"
	RoomStatusOccupied    = "occupied"
	RoomStatusMaintenance = "maintenance"
)

// Room 房间库存：容量、当前入住数与状态
type Room struct {
	RoomID           string `gorm:"type:varchar(36);primaryKey"        json:"room_id"`
	HostelID         string `gorm:"type:varchar(36);not null;index"    json:"hostel_id"`
	RoomNumber       string `gorm:"type:varchar(20);not null"          json:"room_number"`
	Capacity         int    `gorm:"not null"                           json:"capacity"`
	CurrentOccupancy int    `gorm:"not null;default:0"                 json:"current_occupancy"`
	Status           string `gorm:"type:varchar(20);not null;default:available" json:"status"`
	BaseModel

	Hostel *Hostel `gorm:"foreignKey:HostelID;references:HostelID" json:"hostel,omitempty"`
}

func (Room) TableName() string { return "rooms" }

// DeriveRoomStatus 根据入住数与容量推导状态，永远不会得出 maintenance
func DeriveRoomStatus(occupancy, capacity int) string {
	if occupancy >= capacity {
		return RoomStatusOccupied
	}
	return RoomStatusAvailable
}

// RecomputeStatus 入住数变化后重新推导状态；维修中的房间保持 maintenance
func (r *Room) RecomputeStatus() {
	if r.Status == RoomStatusMaintenance {
		return
	}
	r.Status = DeriveRoomStatus(r.CurrentOccupancy, r.Capacity)
}

// SpareCapacity 剩余床位
func (r *Room) SpareCapacity() int {
	if spare := r.Capacity - r.CurrentOccupancy; spare > 0 {
		return spare
	}
	return 0
}

// Assignable 是否可以再分配一名学生
func (r *Room) Assignable() bool {
	return r.Status != RoomStatusMaintenance && r.CurrentOccupancy < r.Capacity
}
