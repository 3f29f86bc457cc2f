package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rl1809/scrap-lifecycle/internal/core/domain"
)

const HistorySheet = "History"

var historyHeader = []interface{}{
	"id",
	"inventory_id",
	"previous_stage",
	"new_stage",
	"status",
	"barcode",
	"qr_code",
	"batch_number",
	"inspection_notes",
	"updated_by",
	"updated_at",
}

// WriteHistoryXLSX renders audit entries as a workbook with one row per entry,
// in the order given. Absent optional fields become empty cells.
func WriteHistoryXLSX(w io.Writer, entries []domain.LifecycleUpdate) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), HistorySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(HistorySheet, "A1", &historyHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, e := range entries {
		row := []interface{}{
			e.ID,
			e.InventoryID,
			stageCell(e.PreviousStage),
			string(e.NewStage),
			statusCell(e.Status),
			textCell(e.Barcode),
			textCell(e.QRCode),
			textCell(e.BatchNumber),
			textCell(e.InspectionNotes),
			e.UpdatedBy,
			e.UpdatedAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell for row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(HistorySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(HistorySheet, "C", "I", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func stageCell(s *domain.Stage) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

func statusCell(s *domain.Status) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

func textCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
