package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type exportJobs interface {
	CreateJob(ctx context.Context, versionID string, req dto.CreateExportRequest, actorID string) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes asynchronous timetable exports.
type ExportHandler struct {
	jobs exportJobs
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc *service.ExportJobService) *ExportHandler {
	return &ExportHandler{jobs: svc}
}

// Create godoc
// @Summary Queue an export of a timetable version
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Timetable version ID"
// @Param payload body dto.CreateExportRequest true "Export options"
// @Success 202 {object} response.Envelope
// @Router /timetables/{id}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	result, err := h.jobs.CreateJob(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Status godoc
// @Summary Poll export job status
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{jobId} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	result, err := h.jobs.GetStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), result.ContentType, result.File, nil)
}
