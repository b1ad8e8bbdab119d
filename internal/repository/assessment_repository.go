package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

// ErrNotUpdated signals that a conditional update matched no rows. Callers
// decide whether that means "gone" or "lock already taken".
var ErrNotUpdated = errors.New("no rows updated")

const assessmentColumns = `id, student_id, group_id, trainer_id, year, assessment_name, assessment_type,
        score, max_score, date, unit, week, is_excused, exported_to_admin, exported_at, exported_by,
        last_edited_at, last_edited_by, edit_count, created_at, updated_at`

// AssessmentRepository handles assessment record persistence.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository creates a new assessment repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create inserts a new assessment record with generated defaults.
func (r *AssessmentRepository) Create(ctx context.Context, record *models.AssessmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO assessment_records (id, student_id, group_id, trainer_id, year, assessment_name, assessment_type,
        score, max_score, date, unit, week, is_excused, exported_to_admin, exported_at, exported_by,
        last_edited_at, last_edited_by, edit_count, created_at, updated_at)
        VALUES (:id, :student_id, :group_id, :trainer_id, :year, :assessment_name, :assessment_type,
        :score, :max_score, :date, :unit, :week, :is_excused, :exported_to_admin, :exported_at, :exported_by,
        :last_edited_at, :last_edited_by, :edit_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create assessment record: %w", err)
	}
	return nil
}

// GetByID returns a single record. sql.ErrNoRows is passed through.
func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*models.AssessmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessment_records WHERE id = $1`, assessmentColumns)
	var record models.AssessmentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get assessment record: %w", err)
	}
	return &record, nil
}

// List returns records matching the filter, ordered by date then student.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessment_records WHERE 1=1`, assessmentColumns)
	var args []interface{}
	if filter.Year != 0 {
		query += fmt.Sprintf(" AND year = $%d", len(args)+1)
		args = append(args, filter.Year)
	}
	if filter.GroupID != "" {
		query += fmt.Sprintf(" AND group_id = $%d", len(args)+1)
		args = append(args, filter.GroupID)
	}
	if filter.Unit != "" {
		query += fmt.Sprintf(" AND unit = $%d", len(args)+1)
		args = append(args, filter.Unit)
	}
	if filter.TrainerID != "" {
		query += fmt.Sprintf(" AND trainer_id = $%d", len(args)+1)
		args = append(args, filter.TrainerID)
	}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	query += " ORDER BY date ASC, student_id ASC"
	var records []models.AssessmentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list assessment records: %w", err)
	}
	return records, nil
}

// ListByGroup returns all records issued to one group.
func (r *AssessmentRepository) ListByGroup(ctx context.Context, groupID string) ([]models.AssessmentRecord, error) {
	return r.List(ctx, models.AssessmentFilter{GroupID: groupID})
}

// UpdateScore applies an accepted score edit. The edit counter is incremented
// in SQL so each accepted edit bumps it by exactly one regardless of caller
// bookkeeping.
func (r *AssessmentRepository) UpdateScore(ctx context.Context, id string, score float64, editedBy string, editedAt time.Time) error {
	const query = `UPDATE assessment_records
        SET score = $1, edit_count = edit_count + 1, last_edited_at = $2, last_edited_by = $3, updated_at = $2
        WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, score, editedAt, editedBy, id)
	if err != nil {
		return fmt.Errorf("update assessment score: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkExported flips the export lock. The update is conditional on the record
// still being a draft, so two concurrent exports cannot both win; losers get
// ErrNotUpdated.
func (r *AssessmentRepository) MarkExported(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE assessment_records
        SET exported_to_admin = TRUE, exported_at = $1, exported_by = $2, updated_at = $1
        WHERE id = $3 AND exported_to_admin = FALSE`
	res, err := r.db.ExecContext(ctx, query, at, actorID, id)
	if err != nil {
		return fmt.Errorf("mark assessment exported: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNotUpdated
	}
	return nil
}

// Delete removes a record entirely. There is no tombstone.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assessment_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assessment record: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
