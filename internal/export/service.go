package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/sitequant/takeoff/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes
// for line-item exports.
type Service struct {
	projects repository.ProjectStore
	items    repository.ItemStore
	logger   *slog.Logger
}

func NewService(projects repository.ProjectStore, items repository.ItemStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{projects: projects, items: items, logger: logger}
}

// ExportItemsXLSX returns an XLSX workbook (as bytes) with every line
// item of the project, in file/sheet/row order.
func (s *Service) ExportItemsXLSX(ctx context.Context, projectID uuid.UUID) ([]byte, error) {
	start := time.Now()

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Line Items"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Source",
		"Sheet",
		"Row",
		"Code",
		"Description",
		"Unit",
		"Quantity",
		"Rate",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, it := range items {
		values := []any{
			string(it.Source),
			it.SheetName,
			it.RowIndex + 1,
			it.Code,
			it.Description,
			it.Unit,
			it.Quantity,
		}
		if it.Rate != nil {
			values = append(values, *it.Rate)
		} else {
			values = append(values, "")
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("items exported",
		"project_id", projectID, "project", project.Name,
		"rows", len(items), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}
