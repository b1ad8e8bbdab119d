package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

const attendanceColumns = `id, student_id, group_id, trainer_id, year, date, status, unit, created_at, updated_at`

// AttendanceRepository handles attendance record persistence.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or updates the (student, date) attendance row.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, student_id, group_id, trainer_id, year, date, status, unit, created_at, updated_at)
        VALUES (:id, :student_id, :group_id, :trainer_id, :year, :date, :status, :unit, :created_at, :updated_at)
        ON CONFLICT (student_id, date)
        DO UPDATE SET status = EXCLUDED.status, unit = EXCLUDED.unit, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

// List returns attendance rows matching the filter, ordered by date.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE 1=1`, attendanceColumns)
	var args []interface{}
	if filter.Year != 0 {
		query += fmt.Sprintf(" AND year = $%d", len(args)+1)
		args = append(args, filter.Year)
	}
	if filter.GroupID != "" {
		query += fmt.Sprintf(" AND group_id = $%d", len(args)+1)
		args = append(args, filter.GroupID)
	}
	if filter.TrainerID != "" {
		query += fmt.Sprintf(" AND trainer_id = $%d", len(args)+1)
		args = append(args, filter.TrainerID)
	}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *filter.DateTo)
	}
	query += " ORDER BY date ASC, student_id ASC"
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance records: %w", err)
	}
	return records, nil
}

// ListByDate returns attendance rows for a single calendar date.
func (r *AttendanceRepository) ListByDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE date = $1 ORDER BY student_id ASC`, attendanceColumns)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, date); err != nil {
		return nil, fmt.Errorf("list attendance by date: %w", err)
	}
	return records, nil
}
