package service

import (
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

// PermissionEvaluator decides whether an actor may touch an assessment
// record. It is pure and never fails; callers turn a false result into a
// rejected operation.
type PermissionEvaluator struct{}

// NewPermissionEvaluator constructs the evaluator.
func NewPermissionEvaluator() *PermissionEvaluator {
	return &PermissionEvaluator{}
}

// CanEdit reports whether the actor may mutate the record. Admins always
// may; trainers only their own records while still in draft.
func (e *PermissionEvaluator) CanEdit(record *models.AssessmentRecord, actor models.Actor) bool {
	if record == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.ID == record.TrainerID && !record.ExportedToAdmin
}

// CanDelete mirrors CanEdit exactly: anything a trainer can edit they can
// delete, and nothing more.
func (e *PermissionEvaluator) CanDelete(record *models.AssessmentRecord, actor models.Actor) bool {
	return e.CanEdit(record, actor)
}

// StatusOf derives the lifecycle label for a single record.
func (e *PermissionEvaluator) StatusOf(record *models.AssessmentRecord) models.RecordStatus {
	if record == nil {
		return models.RecordStatusDraft
	}
	return record.Status()
}

// AllExported reports whether every record in an occasion group carries the
// export lock.
func (e *PermissionEvaluator) AllExported(records []models.AssessmentRecord) bool {
	for i := range records {
		if !records[i].ExportedToAdmin {
			return false
		}
	}
	return len(records) > 0
}

// Partition splits an occasion group into draft and exported counts.
func (e *PermissionEvaluator) Partition(records []models.AssessmentRecord) (draft, exported int) {
	for i := range records {
		if records[i].ExportedToAdmin {
			exported++
		} else {
			draft++
		}
	}
	return draft, exported
}

// OccasionStatusOf derives the aggregate display state for one occasion
// group. This tri-state is a display derivation only, never stored.
func (e *PermissionEvaluator) OccasionStatusOf(records []models.AssessmentRecord) models.OccasionStatus {
	draft, exported := e.Partition(records)
	switch {
	case exported == 0:
		return models.OccasionStatusDraft
	case draft == 0:
		return models.OccasionStatusFullyLocked
	default:
		return models.OccasionStatusPartiallyLocked
	}
}
