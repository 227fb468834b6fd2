package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/mutation-workflow/internal/application/port"
	"github.com/garyjia/mutation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

const registerSheet = "Mutations"

var registerHeader = []string{
	"Référence", "Type", "Statut", "Nom", "Matricule", "Direction", "Service",
	"Poste souhaité", "Localisations souhaitées", "Soumise le", "Date d'effet", "Appliquée le",
}

// RegisterExporter writes the mutation register as an XLSX workbook
type RegisterExporter struct {
	requests port.RequestRepository
	pageSize int
}

// NewRegisterExporter creates a new exporter
func NewRegisterExporter(requests port.RequestRepository) *RegisterExporter {
	return &RegisterExporter{requests: requests, pageSize: maxListLimit}
}

// Export writes every request in one of statuses, or every accepted request
// when statuses is empty, and returns the number of rows written
func (e *RegisterExporter) Export(ctx context.Context, statuses []domainwf.State, w io.Writer) (int, error) {
	if len(statuses) == 0 {
		statuses = []domainwf.State{domainwf.StateAcceptee}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return 0, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := e.writeHeader(f); err != nil {
		return 0, err
	}

	row := 2
	for offset := 0; ; offset += e.pageSize {
		page, err := e.requests.List(ctx, entity.RequestFilter{
			Statuses: statuses,
			Limit:    e.pageSize,
			Offset:   offset,
		})
		if err != nil {
			return 0, err
		}
		for _, req := range page {
			if err := writeRow(f, row, req); err != nil {
				return 0, err
			}
			row++
		}
		if len(page) < e.pageSize {
			break
		}
	}

	count := row - 2
	if count > 0 {
		last, _ := excelize.CoordinatesToCellName(len(registerHeader), row-1)
		if err := f.AutoFilter(registerSheet, "A1:"+last, nil); err != nil {
			return 0, fmt.Errorf("failed to set filter: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return count, nil
}

func (e *RegisterExporter) writeHeader(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, title := range registerHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(registerSheet, cell, title); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(registerHeader), 1)
	if err := f.SetCellStyle(registerSheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetColWidth(registerSheet, "A", "L", 18); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	return f.SetPanes(registerSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRow(f *excelize.File, row int, req *entity.Request) error {
	values := []interface{}{
		req.ID,
		string(req.Type),
		string(req.Status),
		req.Applicant.FullName,
		req.Applicant.Matricule,
		req.Applicant.Direction,
		req.Applicant.Service,
		req.DesiredPost,
		strings.Join(req.DesiredLocations, ", "),
		formatDay(req.SubmittedAt),
		formatDay(req.EffectiveDate),
		formatDay(req.MutationAppliedAt),
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
