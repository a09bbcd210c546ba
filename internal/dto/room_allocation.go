package dto

// ── 分配模块 DTO ──

// AssignRoomRequest 单个学生分配房间请求
type AssignRoomRequest struct {
	StudentID string `json:"student_id" binding:"required,max=36"`
	RoomID    string `json:"room_id"    binding:"required,max=36"`
	HostelID  string `json:"hostel_id"  binding:"required,max=36"`
	StartDate string `json:"start_date" binding:"required,isodate"` // YYYY-MM-DD
}

// RoomAllocationListRequest 分配记录列表查询参数
type RoomAllocationListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=active completed cancelled"`
	PaginationRequest
}

// ── 响应 ──

// RoomAllocationResponse 分配记录响应
type RoomAllocationResponse struct {
	ID        string  `json:"id"`
	StudentID string  `json:"student_id"`
	RoomID    string  `json:"room_id"`
	HostelID  string  `json:"hostel_id"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

// RoomAllocationDetailResponse 分配记录列表项，附带学生/房间/楼栋展示字段
type RoomAllocationDetailResponse struct {
	RoomAllocationResponse
	StudentName   string `json:"student_name"`
	StudentNumber string `json:"student_number"`
	RoomNumber    string `json:"room_number"`
	HostelName    string `json:"hostel_name"`
}

// AutoAssignResponse 自动分配批次结果
type AutoAssignResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AssignedCount int    `json:"assigned_count"`
	FailedCount   int    `json:"failed_count"`
}

// UnassignedStudentResponse 未分配学生
type UnassignedStudentResponse struct {
	ID            string `json:"id"`
	StudentNumber string `json:"student_number"`
	Name          string `json:"name"`
}

// AvailableRoomResponse 有空余床位的房间
type AvailableRoomResponse struct {
	ID               string `json:"id"`
	HostelID         string `json:"hostel_id"`
	HostelName       string `json:"hostel_name"`
	RoomNumber       string `json:"room_number"`
	Capacity         int    `json:"capacity"`
	CurrentOccupancy int    `json:"current_occupancy"`
	SpareCapacity    int    `json:"spare_capacity"`
	Status           string `json:"status"`
}
