package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type editorSessions interface {
	Open(ctx context.Context, req dto.OpenSessionRequest) (*dto.EditorSessionResponse, error)
	Get(ctx context.Context, id string) (*dto.EditorSessionResponse, error)
	Move(ctx context.Context, id string, req dto.MoveAssignmentRequest) (*dto.EditorSessionResponse, error)
	Swap(ctx context.Context, id string, req dto.SwapAssignmentsRequest) (*dto.EditorSessionResponse, error)
	Insert(ctx context.Context, id string, req dto.InsertAssignmentRequest) (*dto.EditorSessionResponse, error)
	Update(ctx context.Context, id string, req dto.UpdateAssignmentRequest) (*dto.EditorSessionResponse, error)
	Remove(ctx context.Context, id string, req dto.RemoveAssignmentRequest) (*dto.EditorSessionResponse, error)
	Undo(ctx context.Context, id string) (*dto.EditorSessionResponse, error)
	Repair(ctx context.Context, id string, req dto.RepairSessionRequest) (*dto.EditorSessionResponse, error)
	Commit(ctx context.Context, id string, req dto.CommitSessionRequest) (*dto.SaveTimetableResponse, error)
	Close(ctx context.Context, id string) error
}

// EditorHandler exposes incremental editing sessions.
type EditorHandler struct {
	sessions editorSessions
}

// NewEditorHandler constructs the handler.
func NewEditorHandler(svc *service.EditorSessionService) *EditorHandler {
	return &EditorHandler{sessions: svc}
}

// Open godoc
// @Summary Open an editor session
// @Description Starts from exactly one source: proposalId, versionId, or an inline problem with assignments.
// @Tags Editor
// @Accept json
// @Produce json
// @Param payload body dto.OpenSessionRequest true "Session source"
// @Success 201 {object} response.Envelope
// @Router /editor/sessions [post]
func (h *EditorHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	result, err := h.sessions.Open(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Get godoc
// @Summary Get the current state of an editor session
// @Tags Editor
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id} [get]
func (h *EditorHandler) Get(c *gin.Context) {
	result, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, result, err)
}

// Move godoc
// @Summary Move an assignment to another slot
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.MoveAssignmentRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /editor/sessions/{id}/move [post]
func (h *EditorHandler) Move(c *gin.Context) {
	var req dto.MoveAssignmentRequest
	if !bindEdit(c, &req) {
		return
	}
	result, err := h.sessions.Move(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Swap godoc
// @Summary Swap the room and slot of two assignments
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SwapAssignmentsRequest true "Swap payload"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id}/swap [post]
func (h *EditorHandler) Swap(c *gin.Context) {
	var req dto.SwapAssignmentsRequest
	if !bindEdit(c, &req) {
		return
	}
	result, err := h.sessions.Swap(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Insert godoc
// @Summary Insert an assignment
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.InsertAssignmentRequest true "Insert payload"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id}/insert [post]
func (h *EditorHandler) Insert(c *gin.Context) {
	var req dto.InsertAssignmentRequest
	if !bindEdit(c, &req) {
		return
	}
	result, err := h.sessions.Insert(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Update godoc
// @Summary Replace an assignment
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateAssignmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id}/update [post]
func (h *EditorHandler) Update(c *gin.Context) {
	var req dto.UpdateAssignmentRequest
	if !bindEdit(c, &req) {
		return
	}
	result, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Remove godoc
// @Summary Remove an assignment
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RemoveAssignmentRequest true "Remove payload"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id}/remove [post]
func (h *EditorHandler) Remove(c *gin.Context) {
	var req dto.RemoveAssignmentRequest
	if !bindEdit(c, &req) {
		return
	}
	result, err := h.sessions.Remove(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Undo godoc
// @Summary Undo the last edit
// @Tags Editor
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /editor/sessions/{id}/undo [post]
func (h *EditorHandler) Undo(c *gin.Context) {
	result, err := h.sessions.Undo(c.Request.Context(), c.Param("id"))
	h.respond(c, result, err)
}

// Repair godoc
// @Summary Repair conflicts in the session as one undoable step
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.RepairSessionRequest false "Repair options"
// @Success 200 {object} response.Envelope
// @Router /editor/sessions/{id}/repair [post]
func (h *EditorHandler) Repair(c *gin.Context) {
	var req dto.RepairSessionRequest
	if c.Request.ContentLength > 0 {
		if !bindEdit(c, &req) {
			return
		}
	}
	result, err := h.sessions.Repair(c.Request.Context(), c.Param("id"), req)
	h.respond(c, result, err)
}

// Commit godoc
// @Summary Save the session as a new timetable version
// @Tags Editor
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CommitSessionRequest false "Commit payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /editor/sessions/{id}/commit [post]
func (h *EditorHandler) Commit(c *gin.Context) {
	var req dto.CommitSessionRequest
	if c.Request.ContentLength > 0 {
		if !bindEdit(c, &req) {
			return
		}
	}
	result, err := h.sessions.Commit(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Close godoc
// @Summary Close an editor session
// @Tags Editor
// @Param id path string true "Session ID"
// @Success 204
// @Router /editor/sessions/{id} [delete]
func (h *EditorHandler) Close(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *EditorHandler) respond(c *gin.Context, result *dto.EditorSessionResponse, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "revision", result.Revision)
	middleware.SetMeta(c, "historyDepth", result.HistoryDepth)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

func bindEdit(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit payload"))
		return false
	}
	return true
}
