package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

type stubStudentReader struct {
	students []models.Student
	calls    int
}

func (s *stubStudentReader) List(_ context.Context, _ models.StudentFilter) ([]models.Student, error) {
	s.calls++
	return s.students, nil
}

type stubAssessmentReader struct {
	records []models.AssessmentRecord
}

func (s *stubAssessmentReader) List(_ context.Context, _ models.AssessmentFilter) ([]models.AssessmentRecord, error) {
	return s.records, nil
}

type stubAttendanceReader struct {
	records []models.AttendanceRecord
}

func (s *stubAttendanceReader) List(_ context.Context, _ models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	return s.records, nil
}

type stubReportCache struct {
	store map[string][]byte
	sets  int
}

func (s *stubReportCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubReportCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	s.sets++
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func mskRecord(student, group string, week int, score float64, date time.Time) models.AssessmentRecord {
	return models.AssessmentRecord{
		ID:             student + "-" + date.Format("0102"),
		StudentID:      student,
		GroupID:        group,
		TrainerID:      "trainer-1",
		Year:           2,
		AssessmentName: "MSK Quiz",
		AssessmentType: models.AssessmentTypeQuiz,
		Score:          score,
		MaxScore:       10,
		Date:           date,
		Unit:           strPtr("MSK"),
		Week:           intPtr(week),
	}
}

func newTestReportService(students []models.Student, records []models.AssessmentRecord, attendance []models.AttendanceRecord) (*ReportService, *stubStudentReader, *stubReportCache) {
	studentReader := &stubStudentReader{students: students}
	cache := &stubReportCache{}
	svc := NewReportService(
		studentReader,
		&stubAssessmentReader{records: records},
		&stubAttendanceReader{records: attendance},
		cache,
		time.Minute,
		zap.NewNop(),
	)
	return svc, studentReader, cache
}

func TestBuildReportRejectsUnknownView(t *testing.T) {
	svc, _, _ := newTestReportService(nil, nil, nil)
	_, err := svc.BuildReport(context.Background(), models.ReportView("pivot"), models.ReportFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBuildReportWeeklyRequiresUnitYears(t *testing.T) {
	svc, _, _ := newTestReportService(nil, nil, nil)
	_, err := svc.BuildReport(context.Background(), models.ReportViewWeekly, models.ReportFilter{Year: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

// Parallel groups sit the same weekly assessment on different dates. The
// columns must merge by week and unit while absences back-fill zeros only
// for the sitting the student's own group had.
func TestDetailedReportWeekColumnsAcrossGroups(t *testing.T) {
	students := []models.Student{
		{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2},
		{ID: "badr", FullName: "Badr", GroupID: "g1", Year: 2},
		{ID: "carmen", FullName: "Carmen", GroupID: "g2", Year: 2},
	}
	records := []models.AssessmentRecord{
		mskRecord("amal", "g1", 3, 7, day(12)),
		mskRecord("carmen", "g2", 3, 9, day(14)),
		mskRecord("amal", "g1", 4, 6, day(19)),
	}
	attendance := []models.AttendanceRecord{
		{StudentID: "badr", GroupID: "g1", Date: day(12), Status: models.AttendanceStatusAbsent},
		{StudentID: "badr", GroupID: "g1", Date: day(19), Status: models.AttendanceStatusAbsent},
	}

	svc, _, _ := newTestReportService(students, records, attendance)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 2, Unit: "MSK"})
	require.NoError(t, err)

	// Both groups' week 3 sittings collapse into one column.
	require.Len(t, report.Columns, 2)
	require.NotNil(t, report.Columns[0].Week)
	assert.Equal(t, 3, *report.Columns[0].Week)
	assert.Equal(t, 4, *report.Columns[1].Week)

	rows := make(map[string]models.ReportRow)
	for _, row := range report.Rows {
		rows[row.StudentID] = row
	}

	amal := rows["amal"]
	assert.Equal(t, models.CellScored, amal.Cells[0].Kind)
	assert.Equal(t, 7.0, amal.Cells[0].Score)
	require.NotNil(t, amal.AveragePercent)
	assert.InDelta(t, 65.0, *amal.AveragePercent, 0.001)

	// Badr missed both sittings of his own group: zeros, not gaps.
	badr := rows["badr"]
	assert.Equal(t, models.CellAbsent, badr.Cells[0].Kind)
	assert.Equal(t, models.CellAbsent, badr.Cells[1].Kind)
	require.NotNil(t, badr.AveragePercent)
	assert.InDelta(t, 0.0, *badr.AveragePercent, 0.001)

	// Carmen's group never sat the week 4 assessment: empty, not zero.
	carmen := rows["carmen"]
	assert.Equal(t, models.CellScored, carmen.Cells[0].Kind)
	assert.Equal(t, models.CellEmpty, carmen.Cells[1].Kind)
	require.NotNil(t, carmen.AveragePercent)
	assert.InDelta(t, 90.0, *carmen.AveragePercent, 0.001)
}

// An excused record shows its score but is removed from the average: one
// excused zero plus one full score averages 100%, not 50%.
func TestExcusedRecordExcludedFromAverage(t *testing.T) {
	students := []models.Student{{ID: "dina", FullName: "Dina", GroupID: "g1", Year: 4}}
	excused := models.AssessmentRecord{
		ID: "r1", StudentID: "dina", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Midterm", AssessmentType: models.AssessmentTypeExam,
		Score: 0, MaxScore: 50, Date: day(5), IsExcused: true,
	}
	scored := models.AssessmentRecord{
		ID: "r2", StudentID: "dina", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Final", AssessmentType: models.AssessmentTypeExam,
		Score: 50, MaxScore: 50, Date: day(20),
	}

	svc, _, _ := newTestReportService(students, []models.AssessmentRecord{excused, scored}, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 4})
	require.NoError(t, err)

	row := report.Rows[0]
	require.NotNil(t, row.AveragePercent)
	assert.InDelta(t, 100.0, *row.AveragePercent, 0.001)
	assert.True(t, row.Cells[0].Excused)
	assert.Equal(t, models.CellScored, row.Cells[0].Kind)
}

// An explicit zero score is a real result, not an inferred absence.
func TestExplicitZeroIsScoredNotAbsent(t *testing.T) {
	students := []models.Student{{ID: "emil", FullName: "Emil", GroupID: "g1", Year: 4}}
	records := []models.AssessmentRecord{{
		ID: "r1", StudentID: "emil", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Quiz", AssessmentType: models.AssessmentTypeQuiz,
		Score: 0, MaxScore: 10, Date: day(12),
	}}
	attendance := []models.AttendanceRecord{
		{StudentID: "emil", GroupID: "g1", Date: day(12), Status: models.AttendanceStatusAbsent},
	}

	svc, _, _ := newTestReportService(students, records, attendance)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 4})
	require.NoError(t, err)

	cell := report.Rows[0].Cells[0]
	assert.Equal(t, models.CellScored, cell.Kind)
	assert.Equal(t, 0.0, cell.Score)
}

// A student with no records, no absences and no attendance has no average
// and no attendance rate: nil, never zero.
func TestEmptyStudentHasNilAggregates(t *testing.T) {
	students := []models.Student{
		{ID: "farah", FullName: "Farah", GroupID: "g2", Year: 4},
	}
	records := []models.AssessmentRecord{{
		ID: "r1", StudentID: "ghali", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Quiz", AssessmentType: models.AssessmentTypeQuiz,
		Score: 5, MaxScore: 10, Date: day(12),
	}}

	svc, _, _ := newTestReportService(students, records, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 4})
	require.NoError(t, err)

	row := report.Rows[0]
	assert.Nil(t, row.AveragePercent)
	assert.Nil(t, row.AttendancePercent)
	assert.Equal(t, models.CellEmpty, row.Cells[0].Kind)
}

func TestAttendanceRateRestrictedToAssessmentDates(t *testing.T) {
	students := []models.Student{{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2}}
	records := []models.AssessmentRecord{
		mskRecord("amal", "g1", 3, 7, day(12)),
		mskRecord("amal", "g1", 4, 6, day(19)),
	}
	attendance := []models.AttendanceRecord{
		{StudentID: "amal", GroupID: "g1", Date: day(12), Status: models.AttendanceStatusPresent},
		{StudentID: "amal", GroupID: "g1", Date: day(19), Status: models.AttendanceStatusLate},
		// Off-date row must not count.
		{StudentID: "amal", GroupID: "g1", Date: day(25), Status: models.AttendanceStatusAbsent},
	}

	svc, _, _ := newTestReportService(students, records, attendance)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 2})
	require.NoError(t, err)

	require.NotNil(t, report.Rows[0].AttendancePercent)
	assert.InDelta(t, 100.0, *report.Rows[0].AttendancePercent, 0.001)
}

func TestAttendanceRateExcusedShrinksDenominator(t *testing.T) {
	students := []models.Student{{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2}}
	records := []models.AssessmentRecord{
		mskRecord("amal", "g1", 3, 7, day(12)),
		mskRecord("amal", "g1", 4, 6, day(19)),
	}
	attendance := []models.AttendanceRecord{
		{StudentID: "amal", GroupID: "g1", Date: day(12), Status: models.AttendanceStatusExcused},
		{StudentID: "amal", GroupID: "g1", Date: day(19), Status: models.AttendanceStatusPresent},
	}

	svc, _, _ := newTestReportService(students, records, attendance)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 2})
	require.NoError(t, err)

	require.NotNil(t, report.Rows[0].AttendancePercent)
	assert.InDelta(t, 100.0, *report.Rows[0].AttendancePercent, 0.001)
}

func TestWeeklyViewAggregatesWithinWeek(t *testing.T) {
	students := []models.Student{{ID: "carmen", FullName: "Carmen", GroupID: "g2", Year: 2}}
	first := mskRecord("carmen", "g2", 3, 9, day(14))
	second := mskRecord("carmen", "g2", 3, 5, day(15))
	second.ID = "carmen-2"
	second.AssessmentName = "MSK Practical"

	svc, _, _ := newTestReportService(students, []models.AssessmentRecord{first, second}, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewWeekly, models.ReportFilter{Year: 2, Unit: "MSK"})
	require.NoError(t, err)

	require.Len(t, report.Columns, 1)
	assert.Equal(t, "Week 3", report.Columns[0].AssessmentName)
	assert.Equal(t, 20.0, report.Columns[0].MaxScore)

	cell := report.Rows[0].Cells[0]
	assert.Equal(t, models.CellScored, cell.Kind)
	assert.Equal(t, 14.0, cell.Score)
	assert.Equal(t, 20.0, cell.MaxScore)
	require.NotNil(t, report.Rows[0].AveragePercent)
	assert.InDelta(t, 70.0, *report.Rows[0].AveragePercent, 0.001)
}

func TestSummaryViewOmitsCells(t *testing.T) {
	students := []models.Student{{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2}}
	records := []models.AssessmentRecord{mskRecord("amal", "g1", 3, 7, day(12))}

	svc, _, _ := newTestReportService(students, records, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewSummary, models.ReportFilter{Year: 2})
	require.NoError(t, err)

	assert.Empty(t, report.Columns)
	require.Len(t, report.Rows, 1)
	assert.Empty(t, report.Rows[0].Cells)
	require.NotNil(t, report.Rows[0].AveragePercent)
	assert.InDelta(t, 70.0, *report.Rows[0].AveragePercent, 0.001)
}

func TestBuildReportUsesCache(t *testing.T) {
	students := []models.Student{{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2}}
	records := []models.AssessmentRecord{mskRecord("amal", "g1", 3, 7, day(12))}

	svc, studentReader, cache := newTestReportService(students, records, nil)
	filter := models.ReportFilter{Year: 2, Unit: "MSK"}

	_, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, studentReader.calls)
	assert.Equal(t, 1, cache.sets)

	cached, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, studentReader.calls)
	require.Len(t, cached.Rows, 1)
}

func TestColumnKeepsFirstSeenMetadata(t *testing.T) {
	students := []models.Student{
		{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2},
		{ID: "carmen", FullName: "Carmen", GroupID: "g2", Year: 2},
	}
	// The first record folded into the column supplies its display date even
	// when a later sitting carries an earlier one.
	first := mskRecord("amal", "g1", 3, 7, day(19))
	second := mskRecord("carmen", "g2", 3, 9, day(12))

	svc, _, _ := newTestReportService(students, []models.AssessmentRecord{first, second}, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 2, Unit: "MSK"})
	require.NoError(t, err)

	require.Len(t, report.Columns, 1)
	assert.Equal(t, day(19), report.Columns[0].Date)
}

func TestColumnsSortedByDateOnFallbackPath(t *testing.T) {
	students := []models.Student{{ID: "emil", FullName: "Emil", GroupID: "g1", Year: 4}}
	later := models.AssessmentRecord{
		ID: "r2", StudentID: "emil", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Final", AssessmentType: models.AssessmentTypeExam,
		Score: 40, MaxScore: 50, Date: day(25),
	}
	earlier := models.AssessmentRecord{
		ID: "r1", StudentID: "emil", GroupID: "g1", TrainerID: "trainer-1", Year: 4,
		AssessmentName: "Midterm", AssessmentType: models.AssessmentTypeExam,
		Score: 30, MaxScore: 50, Date: day(5),
	}

	svc, _, _ := newTestReportService(students, []models.AssessmentRecord{later, earlier}, nil)
	report, err := svc.BuildReport(context.Background(), models.ReportViewDetailed, models.ReportFilter{Year: 4})
	require.NoError(t, err)

	require.Len(t, report.Columns, 2)
	assert.Equal(t, "Midterm", report.Columns[0].AssessmentName)
	assert.Equal(t, "Final", report.Columns[1].AssessmentName)
}
