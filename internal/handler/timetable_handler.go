package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

const (
	maxProblemCourses = 2048
	maxAssignments    = 20000
)

type timetablePreviewResponse struct {
	Mode     string                         `json:"mode"`
	Proposal *dto.GenerateTimetableResponse `json:"proposal"`
}

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Detect(ctx context.Context, req dto.DetectConflictsRequest) (*dto.DetectConflictsResponse, error)
	Repair(ctx context.Context, req dto.RepairTimetableRequest) (*dto.RepairTimetableResponse, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error)
	List(ctx context.Context, query dto.TimetableQuery) (*models.TimetableSummary, error)
	GetSlots(ctx context.Context, id string) (*dto.TimetableSlotsResponse, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*dto.SaveTimetableResponse, error)
}

// TimetableHandler exposes solver and persistence endpoints.
type TimetableHandler struct {
	service timetableGenerator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableGeneratorService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate a timetable proposal
// @Description Runs the backtracking solver over the supplied problem. The proposal is held in memory until saved or expired.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generate timetable payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	if len(req.Problem.Courses) > maxProblemCourses {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "courses exceeds supported limit"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "revision", result.Revision)
	payload := timetablePreviewResponse{
		Mode:     "preview",
		Proposal: result,
	}
	response.JSON(c, http.StatusOK, payload, nil, middleware.ExtractMeta(c))
}

// Detect godoc
// @Summary Detect conflicts in an assignment set
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.DetectConflictsRequest true "Problem and assignments"
// @Success 200 {object} response.Envelope
// @Router /timetables/detect [post]
func (h *TimetableHandler) Detect(c *gin.Context) {
	var req dto.DetectConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid detect payload"))
		return
	}
	if len(req.Assignments) > maxAssignments {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "assignments exceeds supported limit"))
		return
	}
	result, err := h.service.Detect(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Repair godoc
// @Summary Repair conflicts in an existing assignment set
// @Description Relocates conflicting assignments without rebuilding the timetable.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.RepairTimetableRequest true "Problem, assignments and options"
// @Success 200 {object} response.Envelope
// @Router /timetables/repair [post]
func (h *TimetableHandler) Repair(c *gin.Context) {
	var req dto.RepairTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid repair payload"))
		return
	}
	if len(req.Assignments) > maxAssignments {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "assignments exceeds supported limit"))
		return
	}
	result, err := h.service.Repair(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Save godoc
// @Summary Save a proposal as a timetable version
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.SaveTimetableRequest true "Save timetable payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	result, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List timetable versions for a term and program
// @Tags Timetables
// @Produce json
// @Param termId query string true "Term ID"
// @Param programId query string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Slots godoc
// @Summary Get the assignments of a timetable version
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable version ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [get]
func (h *TimetableHandler) Slots(c *gin.Context) {
	result, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a draft timetable version
// @Tags Timetables
// @Param id path string true "Timetable version ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish a draft timetable version
// @Description Promotes a conflict-free draft and archives the previously published version of the same term and program.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/{id}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	result, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
