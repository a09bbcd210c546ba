package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dorm-track/backend/internal/model"
	"dorm-track/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoAllocations = errors.New("该机构暂无分配记录")
	ErrExportGenerateFail  = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
//   - Sheet "分配记录"：机构全部分配历史，按入住日期排序
//   - Sheet "入住概况"：每个房间的容量、入住数与状态
type ExportService interface {
	// ExportAllocations 导出分配记录为 Excel
	ExportAllocations(ctx context.Context, institutionID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

const (
	sheetAllocations = "分配记录"
	sheetOccupancy   = "入住概况"
)

func (s *exportService) ExportAllocations(ctx context.Context, institutionID string) (*bytes.Buffer, string, error) {
	// 1. 查询分配记录
	allocations, err := s.repo.RoomAllocation.ListAll(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询分配记录失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, "", err
	}
	if len(allocations) == 0 {
		return nil, "", ErrExportNoAllocations
	}

	// 2. 查询房间与楼栋（入住概况）
	rooms, err := s.repo.Room.ListByInstitution(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询房间失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, "", err
	}
	hostels, err := s.repo.Hostel.ListByInstitution(ctx, institutionID)
	if err != nil {
		s.logger.Error("查询宿舍楼失败", zap.String("institution_id", institutionID), zap.Error(err))
		return nil, "", err
	}
	hostelNames := make(map[string]string, len(hostels))
	for _, h := range hostels {
		hostelNames[h.HostelID] = h.Name
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(sheetAllocations)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.NewSheet(sheetOccupancy)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	writeAllocationSheet(f, allocations, headerStyle)
	writeOccupancySheet(f, rooms, hostelNames, headerStyle)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("分配记录_%s.xlsx", institutionID)
	return buf, filename, nil
}

func writeAllocationSheet(f *excelize.File, allocations []model.RoomAllocation, headerStyle int) {
	headers := []string{"学号", "姓名", "宿舍楼", "房间", "入住日期", "退宿日期", "状态"}
	writeHeader(f, sheetAllocations, headers, headerStyle)

	f.SetColWidth(sheetAllocations, "A", "A", 14)
	f.SetColWidth(sheetAllocations, "B", "B", 16)
	f.SetColWidth(sheetAllocations, "C", "C", 18)
	f.SetColWidth(sheetAllocations, "D", "G", 12)

	for i := range allocations {
		a := &allocations[i]
		row := i + 2

		var studentNumber, studentName, hostelName, roomNumber string
		if a.Student != nil {
			studentNumber, studentName = a.Student.StudentNumber, a.Student.Name
		}
		if a.Hostel != nil {
			hostelName = a.Hostel.Name
		}
		if a.Room != nil {
			roomNumber = a.Room.RoomNumber
		}
		endDate := "-"
		if a.EndDate != nil {
			endDate = a.EndDate.Format(dateLayout)
		}

		values := []interface{}{studentNumber, studentName, hostelName, roomNumber, a.StartDate.Format(dateLayout), endDate, a.Status}
		for col, v := range values {
			f.SetCellValue(sheetAllocations, cell(colName(col), row), v)
		}
	}
}

func writeOccupancySheet(f *excelize.File, rooms []model.Room, hostelNames map[string]string, headerStyle int) {
	headers := []string{"宿舍楼", "房间", "容量", "入住数", "剩余", "状态"}
	writeHeader(f, sheetOccupancy, headers, headerStyle)
	f.SetColWidth(sheetOccupancy, "A", "A", 18)

	for i := range rooms {
		r := &rooms[i]
		row := i + 2
		values := []interface{}{hostelNames[r.HostelID], r.RoomNumber, r.Capacity, r.CurrentOccupancy, r.SpareCapacity(), r.Status}
		for col, v := range values {
			f.SetCellValue(sheetOccupancy, cell(colName(col), row), v)
		}
	}
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for col, h := range headers {
		f.SetCellValue(sheet, cell(colName(col), 1), h)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(headers)-1), 1), style)
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
