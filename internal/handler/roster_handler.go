package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/service"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/pkg/response"
)

// RosterHandler exposes read-only roster lookups.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler constructs handler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// ListStudents godoc
// @Summary List students
// @Tags Roster
// @Produce json
// @Param groupId query string false "Filter by group"
// @Param year query int false "Filter by year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *RosterHandler) ListStudents(c *gin.Context) {
	year, _ := strconv.Atoi(c.Query("year"))
	filter := models.StudentFilter{GroupID: c.Query("groupId"), Year: year}
	students, err := h.roster.ListStudents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// GetStudent godoc
// @Summary Get one student
// @Tags Roster
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [get]
func (h *RosterHandler) GetStudent(c *gin.Context) {
	student, err := h.roster.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// ListGroups godoc
// @Summary List groups
// @Tags Roster
// @Produce json
// @Param year query int false "Filter by year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /groups [get]
func (h *RosterHandler) ListGroups(c *gin.Context) {
	year, _ := strconv.Atoi(c.Query("year"))
	groups, err := h.roster.ListGroups(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// GetGroup godoc
// @Summary Get one group
// @Tags Roster
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *RosterHandler) GetGroup(c *gin.Context) {
	group, err := h.roster.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}
