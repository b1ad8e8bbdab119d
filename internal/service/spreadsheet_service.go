package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/export"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

const (
	colStudent    = "Student"
	colAverage    = "Average %"
	colAttendance = "Attendance %"
	dashCell      = "-"
)

// FileStore persists rendered spreadsheet files.
type FileStore interface {
	Save(filename string, data []byte) (string, error)
}

// SpreadsheetService renders a built report into downloadable files. The
// tri-state cell distinction survives rendering: an inferred zero is marked
// absent, an excused score is marked excused, and a missing cell is a dash.
type SpreadsheetService struct {
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	storage FileStore
	logger  *zap.Logger
}

// NewSpreadsheetService constructs the spreadsheet service.
func NewSpreadsheetService(csv *export.CSVExporter, pdf *export.PDFExporter, storage FileStore, logger *zap.Logger) *SpreadsheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &SpreadsheetService{csv: csv, pdf: pdf, storage: storage, logger: logger}
}

// BuildDataset flattens a report into tabular headers and rows.
func (s *SpreadsheetService) BuildDataset(report *models.Report) export.Dataset {
	headers := make([]string, 0, len(report.Columns)+3)
	headers = append(headers, colStudent)
	columnHeaders := make([]string, len(report.Columns))
	for i, col := range report.Columns {
		columnHeaders[i] = columnHeader(col)
		headers = append(headers, columnHeaders[i])
	}
	headers = append(headers, colAverage, colAttendance)

	rows := make([]map[string]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		out := map[string]string{
			colStudent:    row.StudentName,
			colAverage:    percentCell(row.AveragePercent),
			colAttendance: percentCell(row.AttendancePercent),
		}
		for i := range report.Columns {
			if i < len(row.Cells) {
				out[columnHeaders[i]] = scoreCell(row.Cells[i])
			} else {
				out[columnHeaders[i]] = dashCell
			}
		}
		rows = append(rows, out)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// Render produces file bytes for the requested format.
func (s *SpreadsheetService) Render(report *models.Report, format models.ReportFormat) ([]byte, string, error) {
	dataset := s.BuildDataset(report)
	switch format {
	case models.ReportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "csv", nil
	case models.ReportFormatPDF:
		data, err := s.pdf.Render(dataset, reportTitle(report))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
}

// RenderToFile renders and persists the report, returning the stored
// relative path.
func (s *SpreadsheetService) RenderToFile(report *models.Report, format models.ReportFormat, jobID string) (string, error) {
	data, ext, err := s.Render(report, format)
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s/%s-%s.%s", time.Now().UTC().Format("2006-01"), report.View, jobID, ext)
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export file")
	}
	return relPath, nil
}

func columnHeader(col models.AssessmentColumn) string {
	max := strconv.FormatFloat(col.MaxScore, 'f', -1, 64)
	if col.Week != nil {
		label := col.AssessmentName
		if col.Unit != nil && *col.Unit != "" {
			label = *col.Unit
		}
		return fmt.Sprintf("W%d %s (%s)", *col.Week, label, max)
	}
	return fmt.Sprintf("%s %s (%s)", col.AssessmentName, col.Date.Format("Jan 02"), max)
}

func scoreCell(cell models.ReportCell) string {
	switch cell.Kind {
	case models.CellScored:
		value := fmt.Sprintf("%s/%s",
			strconv.FormatFloat(cell.Score, 'f', -1, 64),
			strconv.FormatFloat(cell.MaxScore, 'f', -1, 64))
		if cell.Excused {
			return value + " (excused)"
		}
		return value
	case models.CellAbsent:
		return fmt.Sprintf("0/%s (absent)", strconv.FormatFloat(cell.MaxScore, 'f', -1, 64))
	default:
		return dashCell
	}
}

func percentCell(value *float64) string {
	if value == nil {
		return dashCell
	}
	return strconv.FormatFloat(*value, 'f', -1, 64) + "%"
}

func reportTitle(report *models.Report) string {
	title := fmt.Sprintf("%s report", report.View)
	if report.Filter.Year != 0 {
		title = fmt.Sprintf("%s, year %d", title, report.Filter.Year)
	}
	if report.Filter.Unit != "" {
		title = fmt.Sprintf("%s, unit %s", title, report.Filter.Unit)
	}
	return title
}
