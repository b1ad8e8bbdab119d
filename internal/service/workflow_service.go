package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/repository"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
)

// AssessmentStore is the persistence surface the workflow service needs.
type AssessmentStore interface {
	Create(ctx context.Context, record *models.AssessmentRecord) error
	GetByID(ctx context.Context, id string) (*models.AssessmentRecord, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentRecord, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.AssessmentRecord, error)
	UpdateScore(ctx context.Context, id string, score float64, editedBy string, editedAt time.Time) error
	MarkExported(ctx context.Context, id, actorID string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ChangePublisher pushes record mutations to subscribed clients.
type ChangePublisher interface {
	Publish(ctx context.Context, event repository.ChangeEvent)
}

// ReportCacheInvalidator drops cached report payloads after a mutation.
type ReportCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

const reportCachePattern = "report:*"

// Sample failure reasons returned alongside bulk tallies are capped so a
// large batch cannot balloon the response.
const maxFailureSamples = 5

// CreateRecordRequest carries the fields for a new assessment record.
type CreateRecordRequest struct {
	StudentID      string  `json:"student_id" validate:"required,uuid"`
	GroupID        string  `json:"group_id" validate:"required,uuid"`
	TrainerID      string  `json:"trainer_id" validate:"omitempty,uuid"`
	Year           int     `json:"year" validate:"required,min=1,max=6"`
	AssessmentName string  `json:"assessment_name" validate:"required,max=120"`
	AssessmentType string  `json:"assessment_type" validate:"required"`
	Score          float64 `json:"score" validate:"min=0"`
	MaxScore       float64 `json:"max_score" validate:"required,gt=0"`
	Date           string  `json:"date" validate:"required,datetime=2006-01-02"`
	Unit           *string `json:"unit,omitempty" validate:"omitempty,max=60"`
	Week           *int    `json:"week,omitempty" validate:"omitempty,min=1,max=12"`
	IsExcused      bool    `json:"is_excused"`
}

// EditScoreRequest carries a score correction.
type EditScoreRequest struct {
	Score float64 `json:"score" validate:"min=0"`
}

// BulkRequest names the records targeted by a batch operation.
type BulkRequest struct {
	RecordIDs []string `json:"record_ids" validate:"required,min=1,dive,uuid"`
}

// BulkFailure is one failed entry in a batch tally.
type BulkFailure struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// BulkResult tallies a batch operation. Failed entries never abort the rest
// of the batch.
type BulkResult struct {
	Success  int           `json:"success"`
	Failed   int           `json:"failed"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

func (r *BulkResult) addFailure(recordID, reason string) {
	r.Failed++
	if len(r.Failures) < maxFailureSamples {
		r.Failures = append(r.Failures, BulkFailure{RecordID: recordID, Reason: reason})
	}
}

// WorkflowService drives the assessment record lifecycle: creation, score
// edits, deletion and the one-way export to the admin office.
type WorkflowService struct {
	assessments AssessmentStore
	permissions *PermissionEvaluator
	changes     ChangePublisher
	cache       ReportCacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewWorkflowService constructs the workflow service.
func NewWorkflowService(
	assessments AssessmentStore,
	permissions *PermissionEvaluator,
	changes ChangePublisher,
	cache ReportCacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if permissions == nil {
		permissions = NewPermissionEvaluator()
	}
	return &WorkflowService{
		assessments: assessments,
		permissions: permissions,
		changes:     changes,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// AttachMetrics wires the optional instrumentation.
func (s *WorkflowService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// CreateRecord inserts a new draft record. Trainers always own what they
// create; admins may create on behalf of a trainer.
func (s *WorkflowService) CreateRecord(ctx context.Context, req CreateRecordRequest, actor models.Actor) (*models.AssessmentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessmentType := models.AssessmentType(req.AssessmentType)
	if !assessmentType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported assessment type")
	}
	if req.Score > req.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds max score")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment date")
	}

	trainerID := actor.ID
	if actor.IsAdmin() {
		if req.TrainerID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "trainer_id required for admin-created records")
		}
		trainerID = req.TrainerID
	}

	record := &models.AssessmentRecord{
		StudentID:      req.StudentID,
		GroupID:        req.GroupID,
		TrainerID:      trainerID,
		Year:           req.Year,
		AssessmentName: req.AssessmentName,
		AssessmentType: assessmentType,
		Score:          req.Score,
		MaxScore:       req.MaxScore,
		Date:           date,
		Unit:           req.Unit,
		Week:           req.Week,
		IsExcused:      req.IsExcused,
	}
	if record.Year != 2 && record.Year != 3 {
		record.Unit = nil
		record.Week = nil
	}

	if err := s.assessments.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment record")
	}

	s.notifyChange(ctx, "record.created", record.ID, record.GroupID)
	return record, nil
}

// GetRecord returns a single record.
func (s *WorkflowService) GetRecord(ctx context.Context, id string) (*models.AssessmentRecord, error) {
	record, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment record")
	}
	return record, nil
}

// ListRecords returns records visible under the filter. Trainers are pinned
// to their own records.
func (s *WorkflowService) ListRecords(ctx context.Context, filter models.AssessmentFilter, actor models.Actor) ([]models.AssessmentRecord, error) {
	if !actor.IsAdmin() {
		filter.TrainerID = actor.ID
	}
	records, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment records")
	}
	return records, nil
}

// EditScore applies a score correction. The record must still be editable by
// the actor and the new score must fit within [0, maxScore].
func (s *WorkflowService) EditScore(ctx context.Context, recordID string, req EditScoreRequest, actor models.Actor) (*models.AssessmentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	record, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.CanEdit(record, actor) {
		if record.ExportedToAdmin && !actor.IsAdmin() {
			return nil, appErrors.ErrExported
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "record belongs to another trainer")
	}
	if req.Score < 0 || req.Score > record.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score must be between 0 and the record max score")
	}

	now := time.Now().UTC()
	if err := s.assessments.UpdateScore(ctx, recordID, req.Score, actor.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update score")
	}

	record.Score = req.Score
	record.EditCount++
	record.LastEditedAt = &now
	record.LastEditedBy = &actor.ID
	record.UpdatedAt = now

	s.notifyChange(ctx, "record.edited", record.ID, record.GroupID)
	return record, nil
}

// DeleteRecord removes a single record under the same policy as editing.
func (s *WorkflowService) DeleteRecord(ctx context.Context, recordID string, actor models.Actor) error {
	record, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if !s.permissions.CanDelete(record, actor) {
		if record.ExportedToAdmin && !actor.IsAdmin() {
			return appErrors.ErrExported
		}
		return appErrors.Clone(appErrors.ErrForbidden, "record belongs to another trainer")
	}
	if err := s.assessments.Delete(ctx, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment record")
	}
	s.notifyChange(ctx, "record.deleted", recordID, record.GroupID)
	return nil
}

// BulkDelete removes a batch of records and tallies the outcome. A trainer's
// batch is first narrowed to records they could delete individually: exported
// records are silently dropped from the batch and never enter the tally, so
// only attempted deletions are counted.
func (s *WorkflowService) BulkDelete(ctx context.Context, req BulkRequest, actor models.Actor) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	result := &BulkResult{}
	for _, id := range req.RecordIDs {
		record, err := s.assessments.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.addFailure(id, "record not found")
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment record")
		}
		if !s.permissions.CanDelete(record, actor) {
			if record.ExportedToAdmin {
				continue
			}
			result.addFailure(id, "record belongs to another trainer")
			continue
		}
		if err := s.assessments.Delete(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.addFailure(id, "record not found")
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment record")
		}
		result.Success++
	}

	if result.Success > 0 {
		s.notifyChange(ctx, "record.bulk_deleted", "", "")
	}
	return result, nil
}

// ExportSelected flips the export lock on a batch of records. Each record is
// handled independently; a record that is already locked, missing, or not the
// actor's own fails without aborting the rest. Exporting is one-way and a
// repeated export of the same record is a failure, not a no-op.
func (s *WorkflowService) ExportSelected(ctx context.Context, req BulkRequest, actor models.Actor) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	now := time.Now().UTC()
	result := &BulkResult{}
	for _, id := range req.RecordIDs {
		record, err := s.assessments.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.addFailure(id, "record not found")
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment record")
		}
		if !actor.IsAdmin() && record.TrainerID != actor.ID {
			result.addFailure(id, "record belongs to another trainer")
			continue
		}
		if record.ExportedToAdmin {
			result.addFailure(id, "record already exported to admin")
			continue
		}
		if err := s.assessments.MarkExported(ctx, id, actor.ID, now); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotUpdated):
				// Lost the race against a concurrent export.
				result.addFailure(id, "record already exported to admin")
			case errors.Is(err, sql.ErrNoRows):
				result.addFailure(id, "record not found")
			default:
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export assessment record")
			}
			continue
		}
		result.Success++
	}

	if result.Success > 0 {
		s.notifyChange(ctx, "record.exported", "", "")
		s.metrics.RecordRecordsExported(result.Success)
	}
	s.logger.Sugar().Infow("export selected",
		"actor_id", actor.ID,
		"requested", len(req.RecordIDs),
		"success", result.Success,
		"failed", result.Failed,
	)
	return result, nil
}

// AdminExport locks a single record on behalf of the admin office. Only
// admins may call it; the underlying update is conditional so a concurrent
// export cannot be double-counted.
func (s *WorkflowService) AdminExport(ctx context.Context, recordID string, actor models.Actor) (*models.AssessmentRecord, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin export requires the admin role")
	}

	record, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.ExportedToAdmin {
		return nil, appErrors.ErrExported
	}

	now := time.Now().UTC()
	if err := s.assessments.MarkExported(ctx, recordID, actor.ID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotUpdated):
			return nil, appErrors.ErrExported
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment record not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export assessment record")
		}
	}

	record.ExportedToAdmin = true
	record.ExportedAt = &now
	record.ExportedBy = &actor.ID
	record.UpdatedAt = now

	s.notifyChange(ctx, "record.exported", record.ID, record.GroupID)
	s.metrics.RecordRecordsExported(1)
	return record, nil
}

// OccasionStatuses groups a group's records by assessment occasion and
// derives the aggregate lock state of each occasion.
func (s *WorkflowService) OccasionStatuses(ctx context.Context, groupID string, actor models.Actor) ([]models.OccasionSummary, error) {
	records, err := s.assessments.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment records")
	}
	if !actor.IsAdmin() {
		own := records[:0]
		for _, r := range records {
			if r.TrainerID == actor.ID {
				own = append(own, r)
			}
		}
		records = own
	}

	grouped := make(map[string][]models.AssessmentRecord)
	order := make([]string, 0)
	for _, r := range records {
		key := occasionKey(r)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], r)
	}

	summaries := make([]models.OccasionSummary, 0, len(order))
	for _, key := range order {
		group := grouped[key]
		draft, exported := s.permissions.Partition(group)
		summaries = append(summaries, models.OccasionSummary{
			Key:            key,
			AssessmentName: group[0].AssessmentName,
			AssessmentType: group[0].AssessmentType,
			Date:           group[0].Date,
			MaxScore:       group[0].MaxScore,
			DraftCount:     draft,
			ExportedCount:  exported,
			Status:         s.permissions.OccasionStatusOf(group),
		})
	}
	return summaries, nil
}

// notifyChange invalidates cached reports and publishes a change event. Both
// are best-effort; the mutation has already committed.
func (s *WorkflowService) notifyChange(ctx context.Context, kind, recordID, groupID string) {
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, reportCachePattern); err != nil {
			s.logger.Sugar().Warnw("invalidate report cache", "error", err)
		}
	}
	if s.changes != nil {
		s.changes.Publish(ctx, repository.ChangeEvent{
			Kind:     kind,
			RecordID: recordID,
			GroupID:  groupID,
			At:       time.Now().UTC(),
		})
	}
}
