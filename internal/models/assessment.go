package models

import "time"

// AssessmentType enumerates the kinds of graded assessments.
type AssessmentType string

const (
	AssessmentTypeExam         AssessmentType = "exam"
	AssessmentTypeQuiz         AssessmentType = "quiz"
	AssessmentTypeAssignment   AssessmentType = "assignment"
	AssessmentTypeProject      AssessmentType = "project"
	AssessmentTypePresentation AssessmentType = "presentation"
)

// Valid returns true when the type is a supported value.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentTypeExam, AssessmentTypeQuiz, AssessmentTypeAssignment, AssessmentTypeProject, AssessmentTypePresentation:
		return true
	default:
		return false
	}
}

// RecordStatus is the lifecycle state of a single assessment record.
type RecordStatus string

const (
	RecordStatusDraft  RecordStatus = "DRAFT"
	RecordStatusLocked RecordStatus = "LOCKED"
)

// OccasionStatus is the aggregate display state of one assessment occasion.
type OccasionStatus string

const (
	OccasionStatusDraft           OccasionStatus = "DRAFT"
	OccasionStatusPartiallyLocked OccasionStatus = "PARTIALLY_LOCKED"
	OccasionStatusFullyLocked     OccasionStatus = "FULLY_LOCKED"
)

// AssessmentRecord is one graded row per (student, assessment occasion).
// Once ExportedToAdmin flips true the record is immutable to trainers.
type AssessmentRecord struct {
	ID              string         `db:"id" json:"id"`
	StudentID       string         `db:"student_id" json:"student_id"`
	GroupID         string         `db:"group_id" json:"group_id"`
	TrainerID       string         `db:"trainer_id" json:"trainer_id"`
	Year            int            `db:"year" json:"year"`
	AssessmentName  string         `db:"assessment_name" json:"assessment_name"`
	AssessmentType  AssessmentType `db:"assessment_type" json:"assessment_type"`
	Score           float64        `db:"score" json:"score"`
	MaxScore        float64        `db:"max_score" json:"max_score"`
	Date            time.Time      `db:"date" json:"date"`
	Unit            *string        `db:"unit" json:"unit,omitempty"`
	Week            *int           `db:"week" json:"week,omitempty"`
	IsExcused       bool           `db:"is_excused" json:"is_excused"`
	ExportedToAdmin bool           `db:"exported_to_admin" json:"exported_to_admin"`
	ExportedAt      *time.Time     `db:"exported_at" json:"exported_at,omitempty"`
	ExportedBy      *string        `db:"exported_by" json:"exported_by,omitempty"`
	LastEditedAt    *time.Time     `db:"last_edited_at" json:"last_edited_at,omitempty"`
	LastEditedBy    *string        `db:"last_edited_by" json:"last_edited_by,omitempty"`
	EditCount       int            `db:"edit_count" json:"edit_count"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Status derives the record lifecycle state from the export flag.
func (r *AssessmentRecord) Status() RecordStatus {
	if r.ExportedToAdmin {
		return RecordStatusLocked
	}
	return RecordStatusDraft
}

// AssessmentFilter scopes record queries. Zero values mean "all".
type AssessmentFilter struct {
	Year      int
	GroupID   string
	Unit      string
	TrainerID string
	StudentID string
}

// OccasionSummary is the per-occasion partition used to render aggregate lock state.
type OccasionSummary struct {
	Key            string         `json:"key"`
	AssessmentName string         `json:"assessment_name"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Date           time.Time      `json:"date"`
	MaxScore       float64        `json:"max_score"`
	DraftCount     int            `json:"draft_count"`
	ExportedCount  int            `json:"exported_count"`
	Status         OccasionStatus `json:"status"`
}
