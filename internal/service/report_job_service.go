package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/repository"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/jobs"
)

const jobTypeReportExport = "report.export"

// ReportJobStore is the persistence surface for export jobs.
type ReportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

// JobEnqueuer pushes work onto the background queue.
type JobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// URLSigner issues and validates download tokens for stored files.
type URLSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// FileRemover deletes stored export files during cleanup.
type FileRemover interface {
	Delete(filename string) error
}

// CreateReportJobRequest queues an asynchronous report export.
type CreateReportJobRequest struct {
	View   models.ReportView   `json:"view"`
	Filter models.ReportFilter `json:"filter"`
	Format models.ReportFormat `json:"format"`
}

// ReportJobService owns the lifecycle of asynchronous report exports: a job
// is persisted first, then processed by the worker pool, so queued work
// survives a restart.
type ReportJobService struct {
	store        ReportJobStore
	reports      *ReportService
	spreadsheets *SpreadsheetService
	signer       URLSigner
	files        FileRemover
	queue        JobEnqueuer
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewReportJobService constructs the job service. The queue is attached
// after construction because the queue handler closes over this service.
func NewReportJobService(
	store ReportJobStore,
	reports *ReportService,
	spreadsheets *SpreadsheetService,
	signer URLSigner,
	files FileRemover,
	logger *zap.Logger,
) *ReportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportJobService{
		store:        store,
		reports:      reports,
		spreadsheets: spreadsheets,
		signer:       signer,
		files:        files,
		logger:       logger,
	}
}

// AttachQueue wires the background queue used to dispatch jobs.
func (s *ReportJobService) AttachQueue(queue JobEnqueuer) {
	s.queue = queue
}

// AttachMetrics wires the optional instrumentation.
func (s *ReportJobService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// CreateJob persists a queued export job and dispatches it.
func (s *ReportJobService) CreateJob(ctx context.Context, req CreateReportJobRequest, actor models.Actor) (*models.ReportJob, error) {
	if !req.View.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report view")
	}
	if req.Format != models.ReportFormatCSV && req.Format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if req.View == models.ReportViewWeekly && req.Filter.Year != 2 && req.Filter.Year != 3 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekly view is only available for years 2 and 3")
	}

	job := &models.ReportJob{
		View:      req.View,
		Params:    models.ReportJobParams{Filter: req.Filter, Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.ID,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.enqueue(job.ID); err != nil {
		s.logger.Sugar().Errorw("enqueue report job", "job_id", job.ID, "error", err)
		s.fail(ctx, job.ID, "could not queue export")
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}
	return job, nil
}

// GetJob returns job status. Trainers only see their own jobs.
func (s *ReportJobService) GetJob(ctx context.Context, id string, actor models.Actor) (*models.ReportJob, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if !actor.IsAdmin() && job.CreatedBy != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another user")
	}
	return job, nil
}

// ResolveDownload validates a signed token and returns the stored file path.
func (s *ReportJobService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return relPath, nil
}

// Handle is the queue handler: it builds, renders and stores the report for
// one persisted job.
func (s *ReportJobService) Handle(ctx context.Context, job jobs.Job) error {
	stored, err := s.store.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("report job vanished", "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("load report job: %w", err)
	}
	if stored.Status == models.ReportStatusFinished || stored.Status == models.ReportStatusFailed {
		return nil
	}

	s.setProgress(ctx, job.ID, models.ReportStatusProcessing, 10)

	report, err := s.reports.BuildReport(ctx, stored.View, stored.Params.Filter)
	if err != nil {
		s.fail(ctx, job.ID, "report aggregation failed")
		return fmt.Errorf("build report for job %s: %w", job.ID, err)
	}
	s.setProgress(ctx, job.ID, models.ReportStatusProcessing, 60)

	relPath, err := s.spreadsheets.RenderToFile(report, stored.Params.Format, job.ID)
	if err != nil {
		s.fail(ctx, job.ID, "report rendering failed")
		return fmt.Errorf("render report for job %s: %w", job.ID, err)
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.fail(ctx, job.ID, "could not sign download link")
		return fmt.Errorf("sign download for job %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	status := models.ReportStatusFinished
	progress := 100
	if err := s.store.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &token,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish report job %s: %w", job.ID, err)
	}
	s.metrics.RecordExportJob("finished")
	s.logger.Sugar().Infow("report job finished", "job_id", job.ID, "path", relPath)
	return nil
}

// RecoverQueued re-dispatches jobs that were queued when the process died.
func (s *ReportJobService) RecoverQueued(ctx context.Context) error {
	queued, err := s.store.ListQueued(ctx, 50)
	if err != nil {
		return fmt.Errorf("recover queued jobs: %w", err)
	}
	for _, job := range queued {
		if err := s.enqueue(job.ID); err != nil {
			s.logger.Sugar().Errorw("requeue report job", "job_id", job.ID, "error", err)
		}
	}
	if len(queued) > 0 {
		s.logger.Sugar().Infow("recovered queued report jobs", "count", len(queued))
	}
	return nil
}

// CleanupFinished deletes export files for jobs finished before the cutoff
// and clears their download links.
func (s *ReportJobService) CleanupFinished(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	finished, err := s.store.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		return fmt.Errorf("list finished jobs: %w", err)
	}
	for _, job := range finished {
		if job.ResultURL == nil || *job.ResultURL == "" {
			continue
		}
		_, relPath, _, err := s.signer.Parse(*job.ResultURL, true)
		if err != nil {
			s.logger.Sugar().Warnw("parse stored download token", "job_id", job.ID, "error", err)
			continue
		}
		if err := s.files.Delete(relPath); err != nil {
			s.logger.Sugar().Warnw("delete export file", "job_id", job.ID, "path", relPath, "error", err)
			continue
		}
		empty := ""
		if err := s.store.Update(ctx, job.ID, repository.UpdateReportJobParams{ResultURL: &empty}); err != nil {
			s.logger.Sugar().Warnw("clear download link", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

func (s *ReportJobService) enqueue(jobID string) error {
	if s.queue == nil {
		return errors.New("job queue not attached")
	}
	return s.queue.Enqueue(jobs.Job{ID: jobID, Type: jobTypeReportExport})
}

func (s *ReportJobService) setProgress(ctx context.Context, jobID string, status models.ReportStatus, progress int) {
	if err := s.store.Update(ctx, jobID, repository.UpdateReportJobParams{Status: &status, Progress: &progress}); err != nil {
		s.logger.Sugar().Warnw("update job progress", "job_id", jobID, "error", err)
	}
}

func (s *ReportJobService) fail(ctx context.Context, jobID, message string) {
	now := time.Now().UTC()
	status := models.ReportStatusFailed
	if err := s.store.Update(ctx, jobID, repository.UpdateReportJobParams{
		Status:       &status,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Warnw("mark job failed", "job_id", jobID, "error", err)
	}
	s.metrics.RecordExportJob("failed")
}
