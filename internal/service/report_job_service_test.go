package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/repository"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/export"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/jobs"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/storage"
)

type mockReportJobStore struct {
	jobs    map[string]*models.ReportJob
	nextID  int
	updates int
}

func newMockReportJobStore() *mockReportJobStore {
	return &mockReportJobStore{jobs: make(map[string]*models.ReportJob)}
}

func (m *mockReportJobStore) Create(_ context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		m.nextID++
		job.ID = fmt.Sprintf("job-%d", m.nextID)
	}
	job.CreatedAt = time.Now().UTC()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockReportJobStore) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockReportJobStore) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.updates++
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockReportJobStore) ListQueued(_ context.Context, _ int) ([]models.ReportJob, error) {
	var queued []models.ReportJob
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *mockReportJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ReportJob, error) {
	var finished []models.ReportJob
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type stubEnqueuer struct {
	jobs []jobs.Job
	err  error
}

func (s *stubEnqueuer) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type memoryFileStore struct {
	files   map[string][]byte
	deleted []string
}

func newMemoryFileStore() *memoryFileStore {
	return &memoryFileStore{files: make(map[string][]byte)}
}

func (m *memoryFileStore) Save(filename string, data []byte) (string, error) {
	m.files[filename] = data
	return filename, nil
}

func (m *memoryFileStore) Delete(filename string) error {
	if _, ok := m.files[filename]; !ok {
		return errors.New("file not found")
	}
	delete(m.files, filename)
	m.deleted = append(m.deleted, filename)
	return nil
}

func newTestJobService(t *testing.T) (*ReportJobService, *mockReportJobStore, *stubEnqueuer, *memoryFileStore) {
	t.Helper()
	students := []models.Student{{ID: "amal", FullName: "Amal", GroupID: "g1", Year: 2}}
	records := []models.AssessmentRecord{mskRecord("amal", "g1", 3, 7, day(12))}
	reports, _, _ := newTestReportService(students, records, nil)

	files := newMemoryFileStore()
	spreadsheets := NewSpreadsheetService(export.NewCSVExporter(), export.NewPDFExporter(), files, nil)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	store := newMockReportJobStore()
	svc := NewReportJobService(store, reports, spreadsheets, signer, files, nil)
	queue := &stubEnqueuer{}
	svc.AttachQueue(queue)
	return svc, store, queue, files
}

func TestCreateJobQueuesAndDispatches(t *testing.T) {
	svc, store, queue, _ := newTestJobService(t)
	actor := models.Actor{ID: "trainer-1", Role: models.RoleTrainer}

	job, err := svc.CreateJob(context.Background(), CreateReportJobRequest{
		View:   models.ReportViewDetailed,
		Filter: models.ReportFilter{Year: 2},
		Format: models.ReportFormatCSV,
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, "trainer-1", job.CreatedBy)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].ID)
	assert.Contains(t, store.jobs, job.ID)
}

func TestCreateJobRejectsBadFormat(t *testing.T) {
	svc, _, queue, _ := newTestJobService(t)
	_, err := svc.CreateJob(context.Background(), CreateReportJobRequest{
		View:   models.ReportViewDetailed,
		Format: models.ReportFormat("xlsx"),
	}, models.Actor{ID: "trainer-1", Role: models.RoleTrainer})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.jobs)
}

func TestCreateJobEnqueueFailureFailsJob(t *testing.T) {
	svc, store, queue, _ := newTestJobService(t)
	queue.err = errors.New("queue closed")

	_, err := svc.CreateJob(context.Background(), CreateReportJobRequest{
		View:   models.ReportViewDetailed,
		Format: models.ReportFormatCSV,
	}, models.Actor{ID: "trainer-1", Role: models.RoleTrainer})
	require.Error(t, err)

	// The persisted row records the failure rather than staying queued forever.
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestHandleFinishesJobWithDownloadToken(t *testing.T) {
	svc, store, _, files := newTestJobService(t)
	actor := models.Actor{ID: "trainer-1", Role: models.RoleTrainer}

	job, err := svc.CreateJob(context.Background(), CreateReportJobRequest{
		View:   models.ReportViewDetailed,
		Filter: models.ReportFilter{Year: 2},
		Format: models.ReportFormatCSV,
	}, actor)
	require.NoError(t, err)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: job.ID, Type: jobTypeReportExport}))

	stored := store.jobs[job.ID]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)
	require.Len(t, files.files, 1)

	relPath, err := svc.ResolveDownload(*stored.ResultURL)
	require.NoError(t, err)
	assert.Contains(t, files.files, relPath)
}

func TestHandleSkipsFinishedJob(t *testing.T) {
	svc, store, _, _ := newTestJobService(t)
	finished := &models.ReportJob{ID: "done", View: models.ReportViewDetailed, Status: models.ReportStatusFinished}
	store.jobs["done"] = finished

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "done"}))
	assert.Equal(t, 0, store.updates)
}

func TestHandleMissingJobIsNotAnError(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "ghost"}))
}

func TestGetJobOwnership(t *testing.T) {
	svc, store, _, _ := newTestJobService(t)
	store.jobs["job-a"] = &models.ReportJob{ID: "job-a", CreatedBy: "trainer-1", Status: models.ReportStatusQueued}

	_, err := svc.GetJob(context.Background(), "job-a", models.Actor{ID: "trainer-2", Role: models.RoleTrainer})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	job, err := svc.GetJob(context.Background(), "job-a", models.Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "job-a", job.ID)
}

func TestResolveDownloadRejectsTamperedToken(t *testing.T) {
	svc, _, _, _ := newTestJobService(t)
	_, err := svc.ResolveDownload("not.a.real.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCleanupFinishedDeletesFilesAndClearsLinks(t *testing.T) {
	svc, store, _, files := newTestJobService(t)

	job, err := svc.CreateJob(context.Background(), CreateReportJobRequest{
		View:   models.ReportViewDetailed,
		Filter: models.ReportFilter{Year: 2},
		Format: models.ReportFormatCSV,
	}, models.Actor{ID: "trainer-1", Role: models.RoleTrainer})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: job.ID}))

	// Age the job past the retention cutoff.
	old := time.Now().UTC().Add(-48 * time.Hour)
	store.jobs[job.ID].FinishedAt = &old

	require.NoError(t, svc.CleanupFinished(context.Background(), 24*time.Hour))
	assert.Empty(t, files.files)
	require.NotNil(t, store.jobs[job.ID].ResultURL)
	assert.Empty(t, *store.jobs[job.ID].ResultURL)
}
