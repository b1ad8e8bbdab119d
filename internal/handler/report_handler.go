package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/service"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/response"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/storage"
)

// ReportHandler exposes report views and asynchronous exports.
type ReportHandler struct {
	reports *service.ReportService
	jobs    *service.ReportJobService
	files   *storage.LocalStorage
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService, jobs *service.ReportJobService, files *storage.LocalStorage) *ReportHandler {
	return &ReportHandler{reports: reports, jobs: jobs, files: files}
}

func reportFilterFromQuery(c *gin.Context) models.ReportFilter {
	year, _ := strconv.Atoi(c.Query("year"))
	return models.ReportFilter{
		Year:      year,
		GroupID:   c.Query("groupId"),
		Unit:      c.Query("unit"),
		TrainerID: c.Query("trainerId"),
	}
}

// View godoc
// @Summary Build a pivot report
// @Tags Reports
// @Produce json
// @Param view path string true "View (summary, detailed, weekly)"
// @Param year query int false "Filter by year"
// @Param groupId query string false "Filter by group"
// @Param unit query string false "Filter by unit"
// @Param trainerId query string false "Filter by trainer"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/view/{view} [get]
func (h *ReportHandler) View(c *gin.Context) {
	view := models.ReportView(c.Param("view"))
	report, err := h.reports.BuildReport(c.Request.Context(), view, reportFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// CreateExport godoc
// @Summary Queue an asynchronous report export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.CreateReportJobRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/export [post]
func (h *ReportHandler) CreateExport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateReportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/export/jobs/{id} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a rendered export via signed token
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	relPath, err := h.jobs.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+info.Name())
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}
