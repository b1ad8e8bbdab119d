package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

// AttendanceStore is the persistence surface the attendance service needs.
type AttendanceStore interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

// RecordAttendanceRequest carries one attendance mark. Re-marking the same
// (student, date) overwrites the previous status.
type RecordAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	GroupID   string  `json:"group_id" validate:"required,uuid"`
	Year      int     `json:"year" validate:"required,min=1,max=6"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string  `json:"status" validate:"required"`
	Unit      *string `json:"unit,omitempty" validate:"omitempty,max=60"`
}

// AttendanceService records and lists daily attendance.
type AttendanceService struct {
	attendance AttendanceStore
	cache      ReportCacheInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance AttendanceStore, cache ReportCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, cache: cache, validator: validate, logger: logger}
}

// Record upserts an attendance mark for one student and date.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest, actor models.Actor) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance date")
	}

	record := &models.AttendanceRecord{
		StudentID: req.StudentID,
		GroupID:   req.GroupID,
		TrainerID: actor.ID,
		Year:      req.Year,
		Date:      date,
		Status:    status,
		Unit:      req.Unit,
	}
	if err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, reportCachePattern); err != nil {
			s.logger.Sugar().Warnw("invalidate report cache", "error", err)
		}
	}
	return record, nil
}

// List returns attendance rows visible under the filter. Trainers are pinned
// to their own rows.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter, actor models.Actor) ([]models.AttendanceRecord, error) {
	if !actor.IsAdmin() {
		filter.TrainerID = actor.ID
	}
	records, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	return records, nil
}
