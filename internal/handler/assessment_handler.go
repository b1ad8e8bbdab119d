package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/service"
	appErrors "github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/errors"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/response"
)

// AssessmentHandler exposes assessment record lifecycle endpoints.
type AssessmentHandler struct {
	workflow *service.WorkflowService
}

// NewAssessmentHandler constructs handler.
func NewAssessmentHandler(workflow *service.WorkflowService) *AssessmentHandler {
	return &AssessmentHandler{workflow: workflow}
}

// Create godoc
// @Summary Create an assessment record
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.CreateRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.workflow.CreateRecord(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List assessment records
// @Tags Assessments
// @Produce json
// @Param year query int false "Filter by year"
// @Param groupId query string false "Filter by group"
// @Param unit query string false "Filter by unit"
// @Param studentId query string false "Filter by student"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	year, _ := strconv.Atoi(c.Query("year"))
	filter := models.AssessmentFilter{
		Year:      year,
		GroupID:   c.Query("groupId"),
		Unit:      c.Query("unit"),
		StudentID: c.Query("studentId"),
	}
	if actor.IsAdmin() {
		filter.TrainerID = c.Query("trainerId")
	}
	records, err := h.workflow.ListRecords(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get one assessment record
// @Tags Assessments
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	record, err := h.workflow.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// EditScore godoc
// @Summary Edit a record score
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.EditScoreRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/{id}/score [patch]
func (h *AssessmentHandler) EditScore(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.EditScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.workflow.EditScore(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an assessment record
// @Tags Assessments
// @Param id path string true "Record ID"
// @Success 204
// @Security BearerAuth
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.workflow.DeleteRecord(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Delete a batch of assessment records
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.BulkRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/bulk-delete [post]
func (h *AssessmentHandler) BulkDelete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.workflow.BulkDelete(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportSelected godoc
// @Summary Export selected records to the admin office
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.BulkRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/export [post]
func (h *AssessmentHandler) ExportSelected(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.workflow.ExportSelected(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AdminExport godoc
// @Summary Lock a single record on behalf of the admin office
// @Tags Assessments
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/{id}/admin-export [post]
func (h *AssessmentHandler) AdminExport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.workflow.AdminExport(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// OccasionStatuses godoc
// @Summary Aggregate lock state per assessment occasion
// @Tags Assessments
// @Produce json
// @Param groupId query string true "Group ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /assessments/occasions [get]
func (h *AssessmentHandler) OccasionStatuses(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	groupID := c.Query("groupId")
	if groupID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "groupId required"))
		return
	}
	summaries, err := h.workflow.OccasionStatuses(c.Request.Context(), groupID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}
