package models

import "time"

// ReportView enumerates the supported pivot views.
type ReportView string

const (
	ReportViewSummary  ReportView = "summary"
	ReportViewDetailed ReportView = "detailed"
	ReportViewWeekly   ReportView = "weekly"
)

// Valid returns true when the view is a supported value.
func (v ReportView) Valid() bool {
	switch v {
	case ReportViewSummary, ReportViewDetailed, ReportViewWeekly:
		return true
	default:
		return false
	}
}

// ReportFilter scopes report aggregation. Zero values mean "all".
type ReportFilter struct {
	Year      int    `json:"year,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Unit      string `json:"unit,omitempty"`
	TrainerID string `json:"trainer_id,omitempty"`
}

// CellKind tags the three possible states of a report cell. The distinction
// between an absence-inferred zero and a genuinely missing cell is load-bearing
// and must survive rendering.
type CellKind string

const (
	CellScored CellKind = "scored"
	CellAbsent CellKind = "absent"
	CellEmpty  CellKind = "empty"
)

// ReportCell is one (student, column) entry of the pivot matrix.
type ReportCell struct {
	Kind     CellKind `json:"kind"`
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Excused  bool     `json:"excused,omitempty"`
}

// AssessmentColumn is one deduplicated assessment occasion, derived on read
// and never persisted.
type AssessmentColumn struct {
	Key            string         `json:"key"`
	AssessmentName string         `json:"assessment_name"`
	AssessmentType AssessmentType `json:"assessment_type"`
	MaxScore       float64        `json:"max_score"`
	Date           time.Time      `json:"date"`
	Unit           *string        `json:"unit,omitempty"`
	Week           *int           `json:"week,omitempty"`
}

// ReportRow is one student's line in the pivot table. AveragePercent and
// AttendancePercent are nil when the student has no qualifying data; nil
// renders as a dash, never as 0%.
type ReportRow struct {
	StudentID         string       `json:"student_id"`
	StudentName       string       `json:"student_name"`
	Cells             []ReportCell `json:"cells,omitempty"`
	AveragePercent    *float64     `json:"average_percent"`
	AttendancePercent *float64     `json:"attendance_percent"`
}

// Report is the deterministic aggregation output handed to renderers.
type Report struct {
	View        ReportView         `json:"view"`
	Filter      ReportFilter       `json:"filter"`
	Columns     []AssessmentColumn `json:"columns"`
	Rows        []ReportRow        `json:"rows"`
	GeneratedAt time.Time          `json:"generated_at"`
}
