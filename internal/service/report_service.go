package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

// StudentReader reads the roster slice a report covers.
type StudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

// AssessmentReader reads assessment records for aggregation.
type AssessmentReader interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentRecord, error)
}

// AttendanceReader reads attendance rows for aggregation.
type AttendanceReader interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

// ReportCache stores built reports keyed by view and filter.
type ReportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const dateKeyLayout = "2006-01-02"

// occasionKey identifies one assessment occasion: same name, type, max score
// and date means the same sitting regardless of which group wrote it.
func occasionKey(r models.AssessmentRecord) string {
	return fmt.Sprintf("%s|%s|%g|%s", r.AssessmentName, r.AssessmentType, r.MaxScore, r.Date.Format(dateKeyLayout))
}

// weekUnitKey identifies a column on the year 2/3 path, where parallel groups
// sit the same assessment on different dates within a teaching week.
func weekUnitKey(r models.AssessmentRecord) string {
	unit := ""
	if r.Unit != nil {
		unit = *r.Unit
	}
	return fmt.Sprintf("w%02d|%s|%g", *r.Week, unit, r.MaxScore)
}

// ReportService builds the cross-sectional pivot reports. Aggregation is
// read-only and deterministic: the same stored records always produce the
// same report, so results are safe to cache until the next mutation.
type ReportService struct {
	students    StudentReader
	assessments AssessmentReader
	attendance  AttendanceReader
	cache       ReportCache
	cacheTTL    time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(
	students StudentReader,
	assessments AssessmentReader,
	attendance AttendanceReader,
	cache ReportCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ReportService{
		students:    students,
		assessments: assessments,
		attendance:  attendance,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

// AttachMetrics wires the optional instrumentation.
func (s *ReportService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// BuildReport aggregates records into the requested pivot view.
func (s *ReportService) BuildReport(ctx context.Context, view models.ReportView, filter models.ReportFilter) (*models.Report, error) {
	if !view.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report view")
	}
	if view == models.ReportViewWeekly && filter.Year != 2 && filter.Year != 3 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekly view is only available for years 2 and 3")
	}

	cacheKey := reportCacheKey(view, filter)
	if s.cache != nil {
		var cached models.Report
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		} else if err != appErrors.ErrCacheMiss {
			s.logger.Sugar().Warnw("report cache read", "key", cacheKey, "error", err)
		}
		s.metrics.RecordCacheLookup(false)
	}

	students, err := s.students.List(ctx, models.StudentFilter{GroupID: filter.GroupID, Year: filter.Year})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	records, err := s.assessments.List(ctx, models.AssessmentFilter{
		Year:      filter.Year,
		GroupID:   filter.GroupID,
		Unit:      filter.Unit,
		TrainerID: filter.TrainerID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment records")
	}
	attendance, err := s.attendance.List(ctx, models.AttendanceFilter{
		Year:      filter.Year,
		GroupID:   filter.GroupID,
		TrainerID: filter.TrainerID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}

	start := time.Now()
	report := s.assemble(view, filter, students, records, attendance)
	s.metrics.ObserveReportBuild(string(view), time.Since(start))

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("report cache write", "key", cacheKey, "error", err)
		}
	}
	return report, nil
}

func reportCacheKey(view models.ReportView, filter models.ReportFilter) string {
	return fmt.Sprintf("report:%s:y%d:g%s:u%s:t%s", view, filter.Year, filter.GroupID, filter.Unit, filter.TrainerID)
}

// column carries per-column aggregation state that never leaves the service:
// the (group, date) occasions folded into the column, needed for absence
// back-fill, and the per-student record index.
type column struct {
	meta      models.AssessmentColumn
	occasions []groupDate
	seen      map[string]bool
	records   map[string][]models.AssessmentRecord
}

type groupDate struct {
	groupID string
	date    string
}

func (s *ReportService) assemble(
	view models.ReportView,
	filter models.ReportFilter,
	students []models.Student,
	records []models.AssessmentRecord,
	attendance []models.AttendanceRecord,
) *models.Report {
	useWeekKeys := filter.Year == 2 || filter.Year == 3

	columns := s.buildColumns(view, useWeekKeys, records)
	absences := indexAbsences(attendance)

	rows := make([]models.ReportRow, 0, len(students))
	for _, student := range students {
		row := models.ReportRow{StudentID: student.ID, StudentName: student.FullName}
		var sumScore, sumMax float64

		cells := make([]models.ReportCell, 0, len(columns))
		for _, col := range columns {
			cell := buildCell(col, student, absences)
			if cell.Kind != models.CellEmpty && !cell.Excused {
				sumScore += cell.Score
				sumMax += cell.MaxScore
			}
			cells = append(cells, cell)
		}

		if sumMax > 0 {
			avg := round2(sumScore / sumMax * 100)
			row.AveragePercent = &avg
		}
		row.AttendancePercent = attendanceRate(student, records, attendance)

		if view != models.ReportViewSummary {
			row.Cells = cells
		}
		rows = append(rows, row)
	}

	report := &models.Report{
		View:        view,
		Filter:      filter,
		Rows:        rows,
		GeneratedAt: time.Now().UTC(),
	}
	if view != models.ReportViewSummary {
		report.Columns = make([]models.AssessmentColumn, 0, len(columns))
		for _, col := range columns {
			report.Columns = append(report.Columns, col.meta)
		}
	}
	return report
}

// buildColumns deduplicates records into ordered columns. The weekly view
// folds every record of one teaching week into a single column; the other
// views use the week-aware or occasion key depending on the year path. The
// first record seen under a key supplies the column's display metadata.
func (s *ReportService) buildColumns(view models.ReportView, useWeekKeys bool, records []models.AssessmentRecord) []*column {
	byKey := make(map[string]*column)
	order := make([]string, 0)

	for _, r := range records {
		var key string
		switch {
		case view == models.ReportViewWeekly:
			if r.Week == nil {
				continue
			}
			key = fmt.Sprintf("week-%02d", *r.Week)
		case useWeekKeys && r.Week != nil:
			key = weekUnitKey(r)
		default:
			key = occasionKey(r)
		}

		col, ok := byKey[key]
		if !ok {
			col = &column{
				meta: models.AssessmentColumn{
					Key:            key,
					AssessmentName: r.AssessmentName,
					AssessmentType: r.AssessmentType,
					MaxScore:       r.MaxScore,
					Date:           r.Date,
					Unit:           r.Unit,
					Week:           r.Week,
				},
				seen:    make(map[string]bool),
				records: make(map[string][]models.AssessmentRecord),
			}
			if view == models.ReportViewWeekly {
				col.meta.AssessmentName = fmt.Sprintf("Week %d", *r.Week)
				col.meta.MaxScore = 0
			}
			byKey[key] = col
			order = append(order, key)
		}

		occ := occasionKey(r)
		if !col.seen[occ+"|"+r.GroupID] {
			col.seen[occ+"|"+r.GroupID] = true
			col.occasions = append(col.occasions, groupDate{groupID: r.GroupID, date: r.Date.Format(dateKeyLayout)})
		}
		if view == models.ReportViewWeekly && !col.seen[occ] {
			// Distinct sittings widen the weekly denominator.
			col.seen[occ] = true
			col.meta.MaxScore += r.MaxScore
		}
		col.records[r.StudentID] = append(col.records[r.StudentID], r)
	}

	columns := make([]*column, 0, len(order))
	for _, key := range order {
		columns = append(columns, byKey[key])
	}
	sort.SliceStable(columns, func(i, j int) bool {
		wi, wj := columns[i].meta.Week, columns[j].meta.Week
		switch {
		case wi != nil && wj != nil && *wi != *wj:
			return *wi < *wj
		case wi != nil && wj == nil:
			return true
		case wi == nil && wj != nil:
			return false
		}
		if !columns[i].meta.Date.Equal(columns[j].meta.Date) {
			return columns[i].meta.Date.Before(columns[j].meta.Date)
		}
		return columns[i].meta.Key < columns[j].meta.Key
	})
	return columns
}

// buildCell resolves one (student, column) cell with the fixed precedence:
// an explicit score wins, then an absence-inferred zero, then empty.
func buildCell(col *column, student models.Student, absences map[string]map[string]bool) models.ReportCell {
	if recs := col.records[student.ID]; len(recs) > 0 {
		var score, max float64
		excusedOnly := true
		for _, r := range recs {
			if r.IsExcused {
				continue
			}
			excusedOnly = false
			score += r.Score
			max += r.MaxScore
		}
		if excusedOnly {
			for _, r := range recs {
				score += r.Score
				max += r.MaxScore
			}
			return models.ReportCell{Kind: models.CellScored, Score: score, MaxScore: max, Excused: true}
		}
		return models.ReportCell{Kind: models.CellScored, Score: score, MaxScore: max}
	}

	for _, occ := range col.occasions {
		if occ.groupID != student.GroupID {
			continue
		}
		if absences[student.ID][occ.date] {
			return models.ReportCell{Kind: models.CellAbsent, Score: 0, MaxScore: col.meta.MaxScore}
		}
	}
	return models.ReportCell{Kind: models.CellEmpty}
}

// indexAbsences maps student id to the set of dates with an absent row.
func indexAbsences(attendance []models.AttendanceRecord) map[string]map[string]bool {
	idx := make(map[string]map[string]bool)
	for _, a := range attendance {
		if a.Status != models.AttendanceStatusAbsent {
			continue
		}
		dates, ok := idx[a.StudentID]
		if !ok {
			dates = make(map[string]bool)
			idx[a.StudentID] = dates
		}
		dates[a.Date.Format(dateKeyLayout)] = true
	}
	return idx
}

// attendanceRate computes the student's attendance percentage over the dates
// their group actually had an assessment. Excused rows shrink the
// denominator; no qualifying rows means no rate at all.
func attendanceRate(student models.Student, records []models.AssessmentRecord, attendance []models.AttendanceRecord) *float64 {
	assessmentDates := make(map[string]bool)
	for _, r := range records {
		if r.GroupID == student.GroupID {
			assessmentDates[r.Date.Format(dateKeyLayout)] = true
		}
	}
	if len(assessmentDates) == 0 {
		return nil
	}

	var attended, counted int
	for _, a := range attendance {
		if a.StudentID != student.ID || !assessmentDates[a.Date.Format(dateKeyLayout)] {
			continue
		}
		if a.Status == models.AttendanceStatusExcused {
			continue
		}
		counted++
		if a.Status == models.AttendanceStatusPresent || a.Status == models.AttendanceStatusLate {
			attended++
		}
	}
	if counted == 0 {
		return nil
	}
	rate := round2(float64(attended) / float64(counted) * 100)
	return &rate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
