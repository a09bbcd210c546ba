package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"dorm-track/backend/internal/model"
	"dorm-track/backend/internal/repository"
	pkgerrors "dorm-track/backend/pkg/errors"
)

// ── 内存存储 ──
// 四个 mock repository 共享同一份数据，便于校验三条记录之间的一致性

type fault struct {
	err   error
	times int // <=0 表示每次都失败
}

type mockStore struct {
	mu          sync.Mutex
	hostels     map[string]*model.Hostel
	rooms       map[string]*model.Room
	students    map[string]*model.Student
	allocations map[string]*model.RoomAllocation

	// 预置的入住数（不对应任何分配记录）
	baseOccupancy map[string]int

	faults map[string]*fault
	calls  map[string]int

	// 事务串行化，模拟房间行锁
	txMu sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		hostels:       make(map[string]*model.Hostel),
		rooms:         make(map[string]*model.Room),
		students:      make(map[string]*model.Student),
		allocations:   make(map[string]*model.RoomAllocation),
		baseOccupancy: make(map[string]int),
		faults:        make(map[string]*fault),
		calls:         make(map[string]int),
	}
}

func (m *mockStore) repository() *repository.Repository {
	return &repository.Repository{
		Hostel:         &mockHostelRepo{m},
		Room:           &mockRoomRepo{m},
		Student:        &mockStudentRepo{m},
		RoomAllocation: &mockAllocationRepo{m},
		Tx:             &mockTransactor{m},
	}
}

// inject 让 op 在接下来 times 次调用中返回 err
func (m *mockStore) inject(op string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = &fault{err: err, times: times}
}

// hit 记录调用并返回注入的故障，调用方须持有 mu
func (m *mockStore) hit(op string) error {
	m.calls[op]++
	f, ok := m.faults[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(m.faults, op)
		}
	}
	return f.err
}

func (m *mockStore) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls["Create"] + m.calls["SetResidency"] + m.calls["IncrementOccupancy"] +
		m.calls["Delete"] + m.calls["ClearResidency"]
}

// ── 测试数据 ──

func (m *mockStore) seedHostel(id, institutionID, name string) {
	m.hostels[id] = &model.Hostel{HostelID: id, InstitutionID: institutionID, Name: name}
}

func (m *mockStore) seedRoom(id, hostelID, number string, capacity, occupancy int, status string) {
	m.rooms[id] = &model.Room{
		RoomID:           id,
		HostelID:         hostelID,
		RoomNumber:       number,
		Capacity:         capacity,
		CurrentOccupancy: occupancy,
		Status:           status,
	}
	m.baseOccupancy[id] = occupancy
}

func (m *mockStore) seedStudent(id, institutionID, number, name string) {
	m.students[id] = &model.Student{StudentID: id, InstitutionID: institutionID, StudentNumber: number, Name: name}
}

func (m *mockStore) room(id string) model.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rooms[id]
}

func (m *mockStore) student(id string) model.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.students[id]
}

func (m *mockStore) activeAllocations() []model.RoomAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.RoomAllocation
	for _, a := range m.allocations {
		if a.Status == model.AllocationStatusActive {
			list = append(list, *a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StudentID < list[j].StudentID })
	return list
}

// checkInvariant 校验分配记录、居住指针与入住数三者一致
func (m *mockStore) checkInvariant() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	activeByStudent := make(map[string]*model.RoomAllocation)
	countByRoom := make(map[string]int)
	for _, a := range m.allocations {
		if a.Status != model.AllocationStatusActive {
			continue
		}
		if _, dup := activeByStudent[a.StudentID]; dup {
			return fmt.Errorf("学生 %s 有多条 active 分配", a.StudentID)
		}
		activeByStudent[a.StudentID] = a
		countByRoom[a.RoomID]++
	}

	for id, s := range m.students {
		a, active := activeByStudent[id]
		switch {
		case active && (s.RoomID == nil || *s.RoomID != a.RoomID):
			return fmt.Errorf("学生 %s 的居住指针与分配记录不一致", id)
		case !active && s.RoomID != nil:
			return fmt.Errorf("学生 %s 无分配却有居住指针", id)
		}
	}

	for id, r := range m.rooms {
		want := m.baseOccupancy[id] + countByRoom[id]
		if r.CurrentOccupancy != want {
			return fmt.Errorf("房间 %s 入住数=%d，期望 %d", id, r.CurrentOccupancy, want)
		}
		if r.CurrentOccupancy > r.Capacity {
			return fmt.Errorf("房间 %s 超员 %d/%d", id, r.CurrentOccupancy, r.Capacity)
		}
		if r.Status != model.RoomStatusMaintenance && r.Status != model.DeriveRoomStatus(r.CurrentOccupancy, r.Capacity) {
			return fmt.Errorf("房间 %s 状态 %s 与入住数不符", id, r.Status)
		}
	}
	return nil
}

func (m *mockStore) institutionOfHostel(hostelID string) string {
	if h, ok := m.hostels[hostelID]; ok {
		return h.InstitutionID
	}
	return ""
}

// ── Mock Transactor ──
// 事务失败时整体恢复快照

type mockTransactor struct{ s *mockStore }

type storeSnapshot struct {
	rooms       map[string]model.Room
	students    map[string]model.Student
	allocations map[string]model.RoomAllocation
}

func (t *mockTransactor) Transaction(_ context.Context, fn func(txRepo *repository.Repository) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	if err := fn(t.s.repository()); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

func (m *mockStore) snapshot() storeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := storeSnapshot{
		rooms:       make(map[string]model.Room, len(m.rooms)),
		students:    make(map[string]model.Student, len(m.students)),
		allocations: make(map[string]model.RoomAllocation, len(m.allocations)),
	}
	for k, v := range m.rooms {
		snap.rooms[k] = *v
	}
	for k, v := range m.students {
		snap.students[k] = *v
	}
	for k, v := range m.allocations {
		snap.allocations[k] = *v
	}
	return snap
}

func (m *mockStore) restore(snap storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = make(map[string]*model.Room, len(snap.rooms))
	for k, v := range snap.rooms {
		v := v
		m.rooms[k] = &v
	}
	m.students = make(map[string]*model.Student, len(snap.students))
	for k, v := range snap.students {
		v := v
		m.students[k] = &v
	}
	m.allocations = make(map[string]*model.RoomAllocation, len(snap.allocations))
	for k, v := range snap.allocations {
		v := v
		m.allocations[k] = &v
	}
}

// ── Mock HostelRepository ──

type mockHostelRepo struct{ s *mockStore }

func (r *mockHostelRepo) ListByInstitution(_ context.Context, institutionID string) ([]model.Hostel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.Hostel
	for _, h := range r.s.hostels {
		if h.InstitutionID == institutionID {
			list = append(list, *h)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// ── Mock RoomRepository ──

type mockRoomRepo struct{ s *mockStore }

func (r *mockRoomRepo) GetByID(_ context.Context, institutionID, roomID string) (*model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("GetRoom"); err != nil {
		return nil, err
	}
	room, ok := r.s.rooms[roomID]
	if !ok || r.s.institutionOfHostel(room.HostelID) != institutionID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *room
	if h, ok := r.s.hostels[room.HostelID]; ok {
		hc := *h
		cp.Hostel = &hc
	}
	return &cp, nil
}

func (r *mockRoomRepo) GetByIDForUpdate(ctx context.Context, institutionID, roomID string) (*model.Room, error) {
	return r.GetByID(ctx, institutionID, roomID)
}

func (r *mockRoomRepo) ListAvailable(_ context.Context, institutionID string) ([]model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListAvailable"); err != nil {
		return nil, err
	}
	var list []model.Room
	for _, room := range r.s.rooms {
		if r.s.institutionOfHostel(room.HostelID) != institutionID || !room.Assignable() {
			continue
		}
		cp := *room
		if h, ok := r.s.hostels[room.HostelID]; ok {
			hc := *h
			cp.Hostel = &hc
		}
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CurrentOccupancy != list[j].CurrentOccupancy {
			return list[i].CurrentOccupancy < list[j].CurrentOccupancy
		}
		return list[i].RoomID < list[j].RoomID
	})
	return list, nil
}

func (r *mockRoomRepo) ListByInstitution(_ context.Context, institutionID string) ([]model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []model.Room
	for _, room := range r.s.rooms {
		if r.s.institutionOfHostel(room.HostelID) == institutionID {
			list = append(list, *room)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].RoomNumber < list[j].RoomNumber })
	return list, nil
}

func (r *mockRoomRepo) IncrementOccupancy(_ context.Context, roomID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("IncrementOccupancy"); err != nil {
		return err
	}
	room, ok := r.s.rooms[roomID]
	if !ok || !room.Assignable() {
		return pkgerrors.ErrConditionNotMet
	}
	room.CurrentOccupancy++
	room.RecomputeStatus()
	return nil
}

// ── Mock StudentRepository ──

type mockStudentRepo struct{ s *mockStore }

func (r *mockStudentRepo) GetByID(_ context.Context, institutionID, studentID string) (*model.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if st, ok := r.s.students[studentID]; ok && st.InstitutionID == institutionID {
		cp := *st
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockStudentRepo) ListUnassigned(_ context.Context, institutionID string) ([]model.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListUnassigned"); err != nil {
		return nil, err
	}
	var list []model.Student
	for _, st := range r.s.students {
		if st.InstitutionID == institutionID && st.RoomID == nil {
			list = append(list, *st)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].StudentNumber != list[j].StudentNumber {
			return list[i].StudentNumber < list[j].StudentNumber
		}
		return list[i].StudentID < list[j].StudentID
	})
	return list, nil
}

func (r *mockStudentRepo) SetResidency(_ context.Context, studentID, hostelID, roomID, roomNumber string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("SetResidency"); err != nil {
		return err
	}
	st, ok := r.s.students[studentID]
	if !ok || (st.RoomID != nil && *st.RoomID != roomID) {
		return pkgerrors.ErrConditionNotMet
	}
	st.HostelID, st.RoomID, st.RoomNumber = &hostelID, &roomID, &roomNumber
	return nil
}

func (r *mockStudentRepo) ClearResidency(_ context.Context, studentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ClearResidency"); err != nil {
		return err
	}
	if st, ok := r.s.students[studentID]; ok {
		st.HostelID, st.RoomID, st.RoomNumber = nil, nil, nil
	}
	return nil
}

// ── Mock RoomAllocationRepository ──

type mockAllocationRepo struct{ s *mockStore }

func (r *mockAllocationRepo) Create(_ context.Context, allocation *model.RoomAllocation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Create"); err != nil {
		return err
	}
	for _, a := range r.s.allocations {
		if a.StudentID == allocation.StudentID && a.Status == model.AllocationStatusActive &&
			allocation.Status == model.AllocationStatusActive {
			return fmt.Errorf("%w: uq_room_allocations_active_student", pkgerrors.ErrDuplicate)
		}
	}
	cp := *allocation
	r.s.allocations[allocation.AllocationID] = &cp
	return nil
}

func (r *mockAllocationRepo) Delete(_ context.Context, allocationID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("Delete"); err != nil {
		return err
	}
	delete(r.s.allocations, allocationID)
	return nil
}

func (r *mockAllocationRepo) GetActiveByStudent(_ context.Context, studentID string) (*model.RoomAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.allocations {
		if a.StudentID == studentID && a.Status == model.AllocationStatusActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAllocationRepo) joined(institutionID, status string) []model.RoomAllocation {
	var list []model.RoomAllocation
	for _, a := range r.s.allocations {
		if r.s.institutionOfHostel(a.HostelID) != institutionID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
		if st, ok := r.s.students[a.StudentID]; ok {
			sc := *st
			cp.Student = &sc
		}
		if room, ok := r.s.rooms[a.RoomID]; ok {
			rc := *room
			cp.Room = &rc
		}
		if h, ok := r.s.hostels[a.HostelID]; ok {
			hc := *h
			cp.Hostel = &hc
		}
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AllocationID < list[j].AllocationID })
	return list
}

func (r *mockAllocationRepo) List(_ context.Context, filter repository.AllocationFilter, offset, limit int) ([]model.RoomAllocation, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.joined(filter.InstitutionID, filter.Status)
	total := int64(len(all))
	if offset >= len(all) {
		return []model.RoomAllocation{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *mockAllocationRepo) ListAll(_ context.Context, institutionID string) ([]model.RoomAllocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.joined(institutionID, ""), nil
}

// ── Mock BatchLocker ──

type mockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released []string
}

func newMockLocker() *mockLocker {
	return &mockLocker{held: make(map[string]string)}
}

func (l *mockLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := "token-" + key
	l.held[key] = token
	return token, true, nil
}

func (l *mockLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	l.released = append(l.released, key)
	return nil
}
