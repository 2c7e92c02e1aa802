package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labscan/constants"
	"github.com/joseph-ayodele/labscan/internal/entity"
	"github.com/joseph-ayodele/labscan/internal/repository"
)

const Sheet = "Lab Records"

// Service is a thin façade over the record repository that produces XLSX bytes.
type Service struct {
	records repository.LabRecordRepository
	logger  *slog.Logger
}

func NewService(records repository.LabRecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// ExportRecordsXLSX returns a workbook of the records created in [from, to).
// Nil bounds are open.
func (s *Service) ExportRecordsXLSX(ctx context.Context, from, to *time.Time, limit int) ([]byte, error) {
	start := time.Now()
	f := repository.ListFilter{Limit: limit}
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = *to
	}
	recs, err := s.records.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	b, err := WriteXLSX(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok", "rows", len(recs), "bytes", len(b), "elapsed_ms", time.Since(start).Milliseconds())
	return b, nil
}

// Headers returns the column headers in sheet order.
func Headers() []string {
	h := []string{"Record ID", "Source File"}
	h = append(h, constants.AdminFields()...)
	h = append(h, constants.ModelFeatures()...)
	return append(h, "Prediction", "Probability (%)", "Defaulted Fields", "Created At")
}

// WriteXLSX renders recs into a single-sheet workbook.
func WriteXLSX(recs []*entity.LabRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if index, _ := f.GetSheetIndex(Sheet); index == -1 {
		if _, err := f.NewSheet(Sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(Sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	headers := Headers()
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(Sheet, cell, h)
	}

	for i, r := range recs {
		row := i + 2
		col := 1
		write := func(v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(Sheet, cell, v)
			col++
		}

		write(r.ID.String())
		write(r.SourcePath)
		for _, kv := range r.Patient.Pairs() {
			write(kv[1])
		}
		for _, v := range r.Record.Values {
			if v.Categorical {
				write(v.Code)
			} else {
				write(v.Num)
			}
		}
		if r.Prediction != nil {
			write(r.Prediction.Label)
			write(r.Prediction.Probability)
		} else {
			write("")
			write("")
		}
		defaulted := make([]string, 0, len(r.Defaults))
		for _, d := range r.Defaults {
			defaulted = append(defaulted, d.Field)
		}
		write(truncate(strings.Join(defaulted, "; "), 2000))
		write(r.CreatedAt.UTC().Format(time.RFC3339))
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(Sheet, "A", "A", 38) // id
	_ = f.SetColWidth(Sheet, "B", "B", 48) // path
	_ = f.SetColWidth(Sheet, "C", "F", 22) // admin
	_ = f.SetColWidth(Sheet, "G", last, 14)
	_ = f.SetPanes(Sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
