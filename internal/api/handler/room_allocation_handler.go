package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dorm-track/backend/internal/dto"
	"dorm-track/backend/internal/service"
	"dorm-track/backend/pkg/response"
)

// 分配模块错误码
const (
	CodeAlreadyAssigned        = "ALREADY_ASSIGNED"
	CodeRoomFull               = "ROOM_FULL"
	CodeRoomUnavailable        = "ROOM_UNAVAILABLE"
	CodeRoomHostelMismatch     = "ROOM_HOSTEL_MISMATCH"
	CodeStudentNotFound        = "STUDENT_NOT_FOUND"
	CodeRoomNotFound           = "ROOM_NOT_FOUND"
	CodeAllocationCreateFailed = "ALLOCATION_CREATE_FAILED"
	CodeResidencyUpdateFailed  = "RESIDENCY_UPDATE_FAILED"
	CodeOccupancyUpdateFailed  = "OCCUPANCY_UPDATE_FAILED"
	CodeReconciliationRequired = "RECONCILIATION_REQUIRED"
	CodeAutoAssignInProgress   = "AUTO_ASSIGN_IN_PROGRESS"
	CodeCandidateQueryFailed   = "CANDIDATE_QUERY_FAILED"
)

// RoomAllocationHandler 房间分配模块 HTTP 处理器
type RoomAllocationHandler struct {
	allocationSvc service.RoomAllocationService
}

// NewRoomAllocationHandler 创建 RoomAllocationHandler
func NewRoomAllocationHandler(allocationSvc service.RoomAllocationService) *RoomAllocationHandler {
	return &RoomAllocationHandler{allocationSvc: allocationSvc}
}

// AssignRoom 为单个学生分配房间
// POST /api/v1/room-allocations
func (h *RoomAllocationHandler) AssignRoom(c *gin.Context) {
	institutionID, ok := MustGetInstitutionID(c)
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AssignRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "student_id, room_id, hostel_id and start_date (YYYY-MM-DD) are required")
		return
	}

	allocation, err := h.allocationSvc.Assign(c.Request.Context(), institutionID, &req, callerID)
	if err != nil {
		h.handleAllocationError(c, err)
		return
	}

	response.OK(c, allocation)
}

// AutoAssign 为本机构所有未分配学生自动分配房间
// POST /api/v1/room-allocations/auto-assign
func (h *RoomAllocationHandler) AutoAssign(c *gin.Context) {
	institutionID, ok := MustGetInstitutionID(c)
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.allocationSvc.AutoAssign(c.Request.Context(), institutionID, callerID)
	if err != nil {
		h.handleAllocationError(c, err)
		return
	}

	response.OK(c, result)
}

// ListUnassignedStudents 未分配学生列表
// GET /api/v1/room-allocations/unassigned-students
func (h *RoomAllocationHandler) ListUnassignedStudents(c *gin.Context) {
	institutionID, ok := MustGetInstitutionID(c)
	if !ok {
		return
	}

	list, err := h.allocationSvc.ListUnassignedStudents(c.Request.Context(), institutionID)
	if err != nil {
		h.handleAllocationError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ListAvailableRooms 可分配房间列表
// GET /api/v1/room-allocations/available-rooms
func (h *RoomAllocationHandler) ListAvailableRooms(c *gin.Context) {
	institutionID, ok := MustGetInstitutionID(c)
	if !ok {
		return
	}

	list, err := h.allocationSvc.ListAvailableRooms(c.Request.Context(), institutionID)
	if err != nil {
		h.handleAllocationError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ListAllocations 分配记录分页列表
// GET /api/v1/room-allocations?status=&page=&page_size=
func (h *RoomAllocationHandler) ListAllocations(c *gin.Context) {
	institutionID, ok := MustGetInstitutionID(c)
	if !ok {
		return
	}

	var req dto.RoomAllocationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "Invalid query parameters")
		return
	}

	list, total, err := h.allocationSvc.ListAllocations(c.Request.Context(), institutionID, &req)
	if err != nil {
		h.handleAllocationError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// handleAllocationError 将 Service 层错误映射为 HTTP 状态码与错误码
// 补偿失败的错误链中同时含有正向失败原因，必须优先判断
func (h *RoomAllocationHandler) handleAllocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrReconciliationRequired):
		response.Error(c, http.StatusInternalServerError, CodeReconciliationRequired,
			"Allocation failed and could not be fully rolled back; manual reconciliation required")
	case errors.Is(err, service.ErrInvalidStartDate):
		response.BadRequest(c, response.CodeValidation, "start_date must be YYYY-MM-DD")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, CodeStudentNotFound, "Student not found")
	case errors.Is(err, service.ErrRoomNotFound):
		response.NotFound(c, CodeRoomNotFound, "Room not found")
	case errors.Is(err, service.ErrRoomHostelMismatch):
		response.BadRequest(c, CodeRoomHostelMismatch, "Room does not belong to the given hostel")
	case errors.Is(err, service.ErrAlreadyAssigned):
		response.Conflict(c, CodeAlreadyAssigned, "Student already has an active allocation")
	case errors.Is(err, service.ErrRoomFull):
		response.Conflict(c, CodeRoomFull, "Room is at full capacity")
	case errors.Is(err, service.ErrRoomUnavailable):
		response.Conflict(c, CodeRoomUnavailable, "Room is under maintenance")
	case errors.Is(err, service.ErrAutoAssignInProgress):
		response.Conflict(c, CodeAutoAssignInProgress, "An auto-assignment batch is already running")
	case errors.Is(err, service.ErrAllocationCreateFailed):
		response.Error(c, http.StatusInternalServerError, CodeAllocationCreateFailed, "Failed to create allocation")
	case errors.Is(err, service.ErrResidencyUpdateFailed):
		response.Error(c, http.StatusInternalServerError, CodeResidencyUpdateFailed, "Failed to update student residency")
	case errors.Is(err, service.ErrOccupancyUpdateFailed):
		response.Error(c, http.StatusInternalServerError, CodeOccupancyUpdateFailed, "Failed to update room occupancy")
	case errors.Is(err, service.ErrCandidateQueryFailed):
		response.Error(c, http.StatusInternalServerError, CodeCandidateQueryFailed, "Failed to load students or rooms")
	default:
		response.InternalError(c)
	}
}
