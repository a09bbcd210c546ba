package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-track/backend/config"
	"dorm-track/backend/internal/dto"
	"dorm-track/backend/internal/model"
	"dorm-track/backend/internal/repository"
	pkgerrors "dorm-track/backend/pkg/errors"
	"dorm-track/backend/pkg/metrics"
)

// ── 分配模块业务错误 ──

var (
	ErrInvalidStartDate       = errors.New("入住日期格式无效")
	ErrStudentNotFound        = errors.New("学生不存在")
	ErrRoomNotFound           = errors.New("房间不存在")
	ErrRoomHostelMismatch     = errors.New("房间不属于指定宿舍楼")
	ErrAlreadyAssigned        = errors.New("学生已有生效中的分配")
	ErrRoomFull               = errors.New("房间已满")
	ErrRoomUnavailable        = errors.New("房间维修中，不可分配")
	ErrAllocationCreateFailed = errors.New("创建分配记录失败")
	ErrResidencyUpdateFailed  = errors.New("更新学生居住信息失败")
	ErrOccupancyUpdateFailed  = errors.New("更新房间入住数失败")
	ErrReconciliationRequired = pkgerrors.ErrReconciliationRequired
	ErrAutoAssignInProgress   = errors.New("该机构已有自动分配批次在执行")
	ErrCandidateQueryFailed   = errors.New("读取候选学生或房间失败")
)

// 自动分配结果文案（接口返回）
const (
	msgNoUnassignedStudents = "No unassigned students found"
	msgNoAvailableRooms     = "No available rooms found"
	msgAssignedFormat       = "Successfully assigned %d students to rooms"
	msgAbortedFormat        = "Auto-assignment aborted after %d assignments: %s"
)

const dateLayout = "2006-01-02"

// 三个写入步骤的名称，用于日志与补偿指标
const (
	stepCreateAllocation   = "create_allocation"
	stepSetResidency       = "set_residency"
	stepIncrementOccupancy = "increment_occupancy"
)

// BatchLocker 租户级批次锁
type BatchLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// RoomAllocationService 房间分配业务接口
// 单分配是房间入住数与学生居住指针的唯一写入者，批量分配也经由它完成每一对写入
type RoomAllocationService interface {
	// Assign 为单个学生分配房间，三条记录要么全部生效，要么全部回滚
	Assign(ctx context.Context, institutionID string, req *dto.AssignRoomRequest, callerID string) (*dto.RoomAllocationResponse, error)
	// AutoAssign 为本机构所有未分配学生贪心匹配入住数最低的房间
	AutoAssign(ctx context.Context, institutionID, callerID string) (*dto.AutoAssignResponse, error)
	ListUnassignedStudents(ctx context.Context, institutionID string) ([]dto.UnassignedStudentResponse, error)
	ListAvailableRooms(ctx context.Context, institutionID string) ([]dto.AvailableRoomResponse, error)
	ListAllocations(ctx context.Context, institutionID string, req *dto.RoomAllocationListRequest) ([]dto.RoomAllocationDetailResponse, int64, error)
}

type roomAllocationService struct {
	repo    *repository.Repository
	cfg     config.AllocationConfig
	locker  BatchLocker
	metrics *metrics.Recorder
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
	sleep func(time.Duration)
}

// NewRoomAllocationService 创建 RoomAllocationService 实例
// locker 为 nil 时自动分配不加批次锁，仍由条件自增防止超员
func NewRoomAllocationService(
	repo *repository.Repository,
	cfg config.AllocationConfig,
	locker BatchLocker,
	rec *metrics.Recorder,
	logger *zap.Logger,
) RoomAllocationService {
	return &roomAllocationService{
		repo:    repo,
		cfg:     cfg,
		locker:  locker,
		metrics: rec,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		sleep:   time.Sleep,
	}
}

// assignment 一次分配的输入
type assignment struct {
	studentID string
	roomID    string
	hostelID  string
	startDate time.Time
}

func (a assignment) fields(institutionID string) []zap.Field {
	return []zap.Field{
		zap.String("institution_id", institutionID),
		zap.String("student_id", a.studentID),
		zap.String("room_id", a.roomID),
		zap.String("hostel_id", a.hostelID),
	}
}

// ════════════════════════════════════════════════════════════
// Assign 单个学生分配
// ════════════════════════════════════════════════════════════

func (s *roomAllocationService) Assign(ctx context.Context, institutionID string, req *dto.AssignRoomRequest, callerID string) (*dto.RoomAllocationResponse, error) {
	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, ErrInvalidStartDate
	}

	allocation, err := s.assign(ctx, institutionID, assignment{
		studentID: req.StudentID,
		roomID:    req.RoomID,
		hostelID:  req.HostelID,
		startDate: startDate,
	}, callerID)
	if err != nil {
		return nil, err
	}

	resp := toAllocationResponse(allocation)
	return &resp, nil
}

// assign 按配置选择事务模式或补偿模式
// 写入与补偿都运行在脱离调用方取消信号的 context 上，三步之间不响应取消
func (s *roomAllocationService) assign(ctx context.Context, institutionID string, a assignment, callerID string) (*model.RoomAllocation, error) {
	writeCtx := context.WithoutCancel(ctx)

	var (
		allocation *model.RoomAllocation
		err        error
	)
	if s.cfg.AtomicWrites {
		allocation, err = s.assignAtomic(writeCtx, institutionID, a, callerID)
	} else {
		allocation, err = s.assignCompensating(writeCtx, institutionID, a, callerID)
	}

	s.metrics.ObserveAssign(assignResult(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("房间分配成功",
		append(a.fields(institutionID), zap.String("allocation_id", allocation.AllocationID))...)
	return allocation, nil
}

// assignAtomic 事务模式：房间行加 FOR UPDATE 锁后校验，三步写入同一事务提交
func (s *roomAllocationService) assignAtomic(ctx context.Context, institutionID string, a assignment, callerID string) (*model.RoomAllocation, error) {
	var created *model.RoomAllocation

	err := s.repo.Tx.Transaction(ctx, func(txRepo *repository.Repository) error {
		_, room, err := s.checkPreconditions(ctx, txRepo, institutionID, a, true)
		if err != nil {
			return err
		}

		allocation := s.newAllocation(a, callerID)
		if err := createAllocation(ctx, txRepo, allocation); err != nil {
			return err
		}
		if err := setResidency(ctx, txRepo, a, room.RoomNumber); err != nil {
			return err
		}
		if err := incrementOccupancy(ctx, txRepo, a.roomID); err != nil {
			return err
		}

		created = allocation
		return nil
	})
	if err != nil {
		if isRollbackError(err) {
			s.logger.Warn("分配事务失败，已回滚", append(a.fields(institutionID), zap.Error(err))...)
		}
		return nil, err
	}
	return created, nil
}

// assignCompensating 补偿模式：三步逐一提交，后续步骤失败时逆序执行已完成步骤的补偿
func (s *roomAllocationService) assignCompensating(ctx context.Context, institutionID string, a assignment, callerID string) (*model.RoomAllocation, error) {
	_, room, err := s.checkPreconditions(ctx, s.repo, institutionID, a, false)
	if err != nil {
		return nil, err
	}

	allocation := s.newAllocation(a, callerID)
	steps := []allocationStep{
		{
			name:    stepCreateAllocation,
			execute: func(ctx context.Context) error { return createAllocation(ctx, s.repo, allocation) },
			compensate: func(ctx context.Context) error {
				return s.repo.RoomAllocation.Delete(ctx, allocation.AllocationID)
			},
		},
		{
			name:    stepSetResidency,
			execute: func(ctx context.Context) error { return setResidency(ctx, s.repo, a, room.RoomNumber) },
			compensate: func(ctx context.Context) error {
				return s.repo.Student.ClearResidency(ctx, a.studentID)
			},
		},
		{
			// 最后一步，成功即整体成功，无需补偿
			name:    stepIncrementOccupancy,
			execute: func(ctx context.Context) error { return incrementOccupancy(ctx, s.repo, a.roomID) },
		},
	}

	fields := append(a.fields(institutionID), zap.String("allocation_id", allocation.AllocationID))
	if err := s.runSteps(ctx, steps, fields); err != nil {
		return nil, err
	}
	return allocation, nil
}

// checkPreconditions 在任何写入前校验学生与房间
// lockRoom 为 true 时以 FOR UPDATE 读取房间，必须在事务内调用
func (s *roomAllocationService) checkPreconditions(ctx context.Context, repo *repository.Repository, institutionID string, a assignment, lockRoom bool) (*model.Student, *model.Room, error) {
	student, err := repo.Student.GetByID(ctx, institutionID, a.studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", append(a.fields(institutionID), zap.Error(err))...)
		return nil, nil, err
	}
	// 居住指针残留也视为已分配，等待人工核对
	if student.HasResidency() {
		return nil, nil, ErrAlreadyAssigned
	}
	if _, err := repo.RoomAllocation.GetActiveByStudent(ctx, a.studentID); err == nil {
		return nil, nil, ErrAlreadyAssigned
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询生效分配失败", append(a.fields(institutionID), zap.Error(err))...)
		return nil, nil, err
	}

	var room *model.Room
	if lockRoom {
		room, err = repo.Room.GetByIDForUpdate(ctx, institutionID, a.roomID)
	} else {
		room, err = repo.Room.GetByID(ctx, institutionID, a.roomID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRoomNotFound
		}
		s.logger.Error("查询房间失败", append(a.fields(institutionID), zap.Error(err))...)
		return nil, nil, err
	}
	if room.HostelID != a.hostelID {
		return nil, nil, ErrRoomHostelMismatch
	}
	if room.Status == model.RoomStatusMaintenance {
		return nil, nil, ErrRoomUnavailable
	}
	if room.CurrentOccupancy >= room.Capacity {
		return nil, nil, ErrRoomFull
	}
	return student, room, nil
}

func (s *roomAllocationService) newAllocation(a assignment, callerID string) *model.RoomAllocation {
	allocation := &model.RoomAllocation{
		AllocationID: s.newID(),
		StudentID:    a.studentID,
		RoomID:       a.roomID,
		HostelID:     a.hostelID,
		StartDate:    a.startDate,
		Status:       model.AllocationStatusActive,
	}
	if callerID != "" {
		allocation.CreatedBy = &callerID
		allocation.UpdatedBy = &callerID
	}
	return allocation
}

// ── 三个写入步骤 ──

func createAllocation(ctx context.Context, repo *repository.Repository, allocation *model.RoomAllocation) error {
	if err := repo.RoomAllocation.Create(ctx, allocation); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicate) {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("%w: %v", ErrAllocationCreateFailed, err)
	}
	return nil
}

func setResidency(ctx context.Context, repo *repository.Repository, a assignment, roomNumber string) error {
	if err := repo.Student.SetResidency(ctx, a.studentID, a.hostelID, a.roomID, roomNumber); err != nil {
		// 居住指针已被其他请求指向别的房间
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("%w: %v", ErrResidencyUpdateFailed, err)
	}
	return nil
}

func incrementOccupancy(ctx context.Context, repo *repository.Repository, roomID string) error {
	if err := repo.Room.IncrementOccupancy(ctx, roomID); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return fmt.Errorf("%w: 条件自增未命中", ErrRoomFull)
		}
		return fmt.Errorf("%w: %v", ErrOccupancyUpdateFailed, err)
	}
	return nil
}

// isRollbackError 是否为写入阶段失败（区别于前置校验拒绝）
func isRollbackError(err error) bool {
	return errors.Is(err, ErrAllocationCreateFailed) ||
		errors.Is(err, ErrResidencyUpdateFailed) ||
		errors.Is(err, ErrOccupancyUpdateFailed)
}

func assignResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultAssigned
	case errors.Is(err, ErrReconciliationRequired):
		return metrics.ResultReconciliation
	case isRollbackError(err):
		return metrics.ResultRolledBack
	default:
		return metrics.ResultRejected
	}
}

// ════════════════════════════════════════════════════════════
// AutoAssign 贪心批量分配
// ════════════════════════════════════════════════════════════

func (s *roomAllocationService) AutoAssign(ctx context.Context, institutionID, callerID string) (*dto.AutoAssignResponse, error) {
	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout)
	defer cancel()

	release, err := s.acquireBatchLock(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// 1. 读取候选学生
	students, err := s.repo.Student.ListUnassigned(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询未分配学生失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCandidateQueryFailed, err)
	}
	if len(students) == 0 {
		return &dto.AutoAssignResponse{Success: true, Message: msgNoUnassignedStudents}, nil
	}

	// 2. 读取候选房间
	rooms, err := s.repo.Room.ListAvailable(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询可用房间失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCandidateQueryFailed, err)
	}
	if len(rooms) == 0 {
		return &dto.AutoAssignResponse{Success: true, Message: msgNoAvailableRooms}, nil
	}

	// 3. 逐个学生匹配入住数最低的房间
	pool := newCapacityPool(rooms)
	startDate := truncateToDate(s.now())
	result := &dto.AutoAssignResponse{Success: true}
	var abortReason string

	for _, student := range students {
		if err := ctx.Err(); err != nil {
			abortReason = batchAbortReason(err)
			s.logger.Warn("自动分配批次被中断",
				zap.String("institution_id", institutionID),
				zap.Int("assigned", result.AssignedCount),
				zap.Error(err))
			break
		}

		room := pool.next()
		if room == nil {
			break
		}

		a := assignment{
			studentID: student.StudentID,
			roomID:    room.RoomID,
			hostelID:  room.HostelID,
			startDate: startDate,
		}
		if _, err := s.assign(ctx, institutionID, a, callerID); err != nil {
			result.FailedCount++
			s.logger.Warn("自动分配单对失败，跳过该学生",
				append(a.fields(institutionID), zap.String("student_number", student.StudentNumber), zap.Error(err))...)

			if errors.Is(err, ErrRoomFull) || errors.Is(err, ErrRoomUnavailable) || errors.Is(err, ErrRoomNotFound) {
				pool.exhaust(room.RoomID)
			}
			if s.cfg.BatchFailurePolicy == config.FailurePolicyFailFast {
				abortReason = err.Error()
				break
			}
			continue
		}

		pool.consume(room.RoomID)
		result.AssignedCount++
	}

	if abortReason != "" {
		result.Success = false
		result.Message = fmt.Sprintf(msgAbortedFormat, result.AssignedCount, abortReason)
	} else {
		result.Message = fmt.Sprintf(msgAssignedFormat, result.AssignedCount)
	}

	elapsed := s.now().Sub(started)
	s.metrics.ObserveBatch(elapsed, result.AssignedCount)
	s.logger.Info("自动分配批次完成",
		zap.String("institution_id", institutionID),
		zap.Int("candidates", len(students)),
		zap.Int("assigned", result.AssignedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("remaining_capacity", pool.remaining()),
		zap.Duration("elapsed", elapsed),
		zap.Bool("success", result.Success))

	return result, nil
}

const batchLockPrefix = "lock:auto-assign:"

// acquireBatchLock 获取租户级批次锁，返回释放函数
// Redis 不可用时降级为无锁执行
func (s *roomAllocationService) acquireBatchLock(ctx context.Context, institutionID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := batchLockPrefix + institutionID
	ttl := s.cfg.BatchLockTTL
	if ttl <= 0 {
		ttl = s.cfg.BatchTimeout
	}

	token, ok, err := s.locker.AcquireLock(ctx, key, ttl)
	if err != nil {
		s.logger.Warn("获取批次锁失败，降级为无锁执行", zap.String("key", key), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrAutoAssignInProgress
	}

	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("释放批次锁失败", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// batchAbortReason 区分批次超时与调用方取消
func batchAbortReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "batch deadline exceeded"
	}
	return "batch canceled: " + err.Error()
}

// truncateToDate 取 t 在 UTC 下的日期
func truncateToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ════════════════════════════════════════════════════════════
// 只读视图
// ════════════════════════════════════════════════════════════

func (s *roomAllocationService) ListUnassignedStudents(ctx context.Context, institutionID string) ([]dto.UnassignedStudentResponse, error) {
	students, err := s.repo.Student.ListUnassigned(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询未分配学生失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, err
	}

	list := make([]dto.UnassignedStudentResponse, 0, len(students))
	for _, st := range students {
		list = append(list, dto.UnassignedStudentResponse{
			ID:            st.StudentID,
			StudentNumber: st.StudentNumber,
			Name:          st.Name,
		})
	}
	return list, nil
}

func (s *roomAllocationService) ListAvailableRooms(ctx context.Context, institutionID string) ([]dto.AvailableRoomResponse, error) {
	rooms, err := s.repo.Room.ListAvailable(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询可用房间失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, err
	}

	list := make([]dto.AvailableRoomResponse, 0, len(rooms))
	for i := range rooms {
		r := &rooms[i]
		item := dto.AvailableRoomResponse{
			ID:               r.RoomID,
			HostelID:         r.HostelID,
			RoomNumber:       r.RoomNumber,
			Capacity:         r.Capacity,
			CurrentOccupancy: r.CurrentOccupancy,
			SpareCapacity:    r.SpareCapacity(),
			Status:           r.Status,
		}
		if r.Hostel != nil {
			item.HostelName = r.Hostel.Name
		}
		list = append(list, item)
	}
	return list, nil
}

func (s *roomAllocationService) ListAllocations(ctx context.Context, institutionID string, req *dto.RoomAllocationListRequest) ([]dto.RoomAllocationDetailResponse, int64, error) {
	filter := repository.AllocationFilter{InstitutionID: institutionID, Status: req.Status}
	allocations, total, err := s.repo.RoomAllocation.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询分配记录失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, 0, err
	}

	list := make([]dto.RoomAllocationDetailResponse, 0, len(allocations))
	for i := range allocations {
		list = append(list, toAllocationDetail(&allocations[i]))
	}
	return list, total, nil
}

// ── 转换函数 ──

func toAllocationResponse(a *model.RoomAllocation) dto.RoomAllocationResponse {
	resp := dto.RoomAllocationResponse{
		ID:        a.AllocationID,
		StudentID: a.StudentID,
		RoomID:    a.RoomID,
		HostelID:  a.HostelID,
		StartDate: a.StartDate.Format(dateLayout),
		Status:    a.Status,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.EndDate != nil {
		end := a.EndDate.Format(dateLayout)
		resp.EndDate = &end
	}
	return resp
}

func toAllocationDetail(a *model.RoomAllocation) dto.RoomAllocationDetailResponse {
	detail := dto.RoomAllocationDetailResponse{RoomAllocationResponse: toAllocationResponse(a)}
	if a.Student != nil {
		detail.StudentName = a.Student.Name
		detail.StudentNumber = a.Student.StudentNumber
	}
	if a.Room != nil {
		detail.RoomNumber = a.Room.RoomNumber
	}
	if a.Hostel != nil {
		detail.HostelName = a.Hostel.Name
	}
	return detail
}
