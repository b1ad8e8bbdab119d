package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

func newAssessmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAssessmentRepositoryCreateGeneratesID(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AssessmentRecord{
		StudentID:      "student-1",
		GroupID:        "group-1",
		TrainerID:      "trainer-1",
		Year:           2,
		AssessmentName: "MSK Quiz",
		AssessmentType: models.AssessmentTypeQuiz,
		Score:          7,
		MaxScore:       10,
		Date:           time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.False(t, record.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, group_id")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "student_id", "group_id", "trainer_id", "year", "assessment_name", "assessment_type",
		"score", "max_score", "date", "unit", "week", "is_excused", "exported_to_admin", "exported_at", "exported_by",
		"last_edited_at", "last_edited_by", "edit_count", "created_at", "updated_at"}).
		AddRow("rec-1", "student-1", "group-1", "trainer-1", 2, "MSK Quiz", "quiz",
			7.0, 10.0, time.Now(), "MSK", 3, false, false, nil, nil,
			nil, nil, 0, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, group_id")).
		WithArgs(2, "group-1", "trainer-1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.AssessmentFilter{
		Year:      2,
		GroupID:   "group-1",
		TrainerID: "trainer-1",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "rec-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryUpdateScoreIncrementsInSQL(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_records")).
		WithArgs(8.5, now, "trainer-1", "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateScore(context.Background(), "rec-1", 8.5, "trainer-1", now))
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateScore(context.Background(), "gone", 8.5, "trainer-1", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAssessmentRepositoryMarkExportedConditional(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_records")).
		WithArgs(now, "trainer-1", "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkExported(context.Background(), "rec-1", "trainer-1", now))
	require.NoError(t, mock.ExpectationsWereMet())

	// A record already exported matches no rows; the caller treats that as a
	// lost race, not a missing record.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkExported(context.Background(), "rec-1", "trainer-1", now)
	require.ErrorIs(t, err, ErrNotUpdated)
}

func TestAssessmentRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()

	repo := NewAssessmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM assessment_records")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "gone")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
