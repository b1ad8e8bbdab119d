package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

func sampleReport() *models.Report {
	avg := 65.0
	att := 50.0
	return &models.Report{
		View:   models.ReportViewDetailed,
		Filter: models.ReportFilter{Year: 2, Unit: "MSK"},
		Columns: []models.AssessmentColumn{
			{Key: "w03|MSK|10", AssessmentName: "MSK Quiz", MaxScore: 10, Unit: strPtr("MSK"), Week: intPtr(3)},
			{Key: "w04|MSK|10", AssessmentName: "MSK Quiz", MaxScore: 10, Unit: strPtr("MSK"), Week: intPtr(4)},
		},
		Rows: []models.ReportRow{
			{
				StudentID:   "amal",
				StudentName: "Amal",
				Cells: []models.ReportCell{
					{Kind: models.CellScored, Score: 7.5, MaxScore: 10},
					{Kind: models.CellAbsent, Score: 0, MaxScore: 10},
				},
				AveragePercent:    &avg,
				AttendancePercent: &att,
			},
			{
				StudentID:   "badr",
				StudentName: "Badr",
				Cells: []models.ReportCell{
					{Kind: models.CellScored, Score: 10, MaxScore: 10, Excused: true},
					{Kind: models.CellEmpty},
				},
			},
		},
	}
}

func TestBuildDatasetCellMarkers(t *testing.T) {
	svc := NewSpreadsheetService(nil, nil, nil, nil)
	dataset := svc.BuildDataset(sampleReport())

	require.Equal(t, []string{"Student", "W3 MSK (10)", "W4 MSK (10)", "Average %", "Attendance %"}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)

	amal := dataset.Rows[0]
	assert.Equal(t, "Amal", amal["Student"])
	assert.Equal(t, "7.5/10", amal["W3 MSK (10)"])
	assert.Equal(t, "0/10 (absent)", amal["W4 MSK (10)"])
	assert.Equal(t, "65%", amal["Average %"])
	assert.Equal(t, "50%", amal["Attendance %"])

	badr := dataset.Rows[1]
	assert.Equal(t, "10/10 (excused)", badr["W3 MSK (10)"])
	assert.Equal(t, "-", badr["W4 MSK (10)"])
	assert.Equal(t, "-", badr["Average %"])
	assert.Equal(t, "-", badr["Attendance %"])
}

func TestBuildDatasetDatedHeaderWithoutWeek(t *testing.T) {
	svc := NewSpreadsheetService(nil, nil, nil, nil)
	report := &models.Report{
		View: models.ReportViewDetailed,
		Columns: []models.AssessmentColumn{
			{Key: "k", AssessmentName: "Midterm", MaxScore: 50, Date: day(5)},
		},
		Rows: []models.ReportRow{{StudentID: "dina", StudentName: "Dina"}},
	}
	dataset := svc.BuildDataset(report)

	require.Contains(t, dataset.Headers, "Midterm Mar 05 (50)")
	// Summary rows carry no cells; every column renders as a dash.
	assert.Equal(t, "-", dataset.Rows[0]["Midterm Mar 05 (50)"])
}

func TestRenderCSVIncludesMarkers(t *testing.T) {
	svc := NewSpreadsheetService(nil, nil, nil, nil)
	data, ext, err := svc.Render(sampleReport(), models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "csv", ext)

	out := string(data)
	assert.Contains(t, out, "0/10 (absent)")
	assert.Contains(t, out, "10/10 (excused)")
	assert.Contains(t, out, "65%")
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	svc := NewSpreadsheetService(nil, nil, nil, nil)
	_, _, err := svc.Render(sampleReport(), models.ReportFormat("xlsx"))
	require.Error(t, err)
}
