package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestExportService_ExportAllocations(t *testing.T) {
	h := setupTestAllocationService(newTestStore(), true)
	ctx := context.Background()
	if _, err := h.svc.AutoAssign(ctx, testInstitution, ""); err != nil {
		t.Fatalf("AutoAssign 应成功: %v", err)
	}

	svc := NewExportService(h.store.repository(), zap.NewNop())
	buf, filename, err := svc.ExportAllocations(ctx, testInstitution)
	if err != nil {
		t.Fatalf("ExportAllocations 应成功: %v", err)
	}
	if filename != "分配记录_inst-1.xlsx" {
		t.Errorf("文件名不符: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("生成的文件无法解析: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); len(sheets) != 2 || sheets[0] != sheetAllocations || sheets[1] != sheetOccupancy {
		t.Fatalf("Sheet 列表不符: %v", sheets)
	}

	rows, err := f.GetRows(sheetAllocations)
	if err != nil {
		t.Fatalf("读取分配记录失败: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("期望表头 + 3 行，实际 %d 行", len(rows))
	}
	if rows[0][0] != "学号" || rows[1][0] != "S001" || rows[1][2] != "North Hall" || rows[1][4] != "2026-09-01" {
		t.Errorf("第一条记录不符: %v", rows[1])
	}

	occ, err := f.GetRows(sheetOccupancy)
	if err != nil {
		t.Fatalf("读取入住概况失败: %v", err)
	}
	// room-a room-b room-m room-f，不含外校房间
	if len(occ) != 5 {
		t.Fatalf("期望表头 + 4 个房间，实际 %d 行", len(occ))
	}
	if occ[1][1] != "101" || occ[1][3] != "2" || occ[1][5] != "occupied" {
		t.Errorf("room-a 概况不符: %v", occ[1])
	}
}

func TestExportService_NoAllocations(t *testing.T) {
	store := newTestStore()
	svc := NewExportService(store.repository(), zap.NewNop())

	_, _, err := svc.ExportAllocations(context.Background(), testInstitution)
	if !errors.Is(err, ErrExportNoAllocations) {
		t.Fatalf("期望 ErrExportNoAllocations，实际: %v", err)
	}
}
