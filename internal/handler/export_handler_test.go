package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type exportJobsMock struct {
	versionID   string
	actor       string
	createResp  *dto.ExportJobResponse
	statusResp  *dto.ExportStatusResponse
	statusErr   error
	download    *service.ExportDownload
	downloadErr error
}

func (m *exportJobsMock) CreateJob(ctx context.Context, versionID string, req dto.CreateExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	m.versionID = versionID
	m.actor = actorID
	return m.createResp, nil
}

func (m *exportJobsMock) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *exportJobsMock) ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error) {
	return m.download, m.downloadErr
}

func TestExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &exportJobsMock{createResp: &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}}
	handler := &ExportHandler{jobs: mock}

	c, w := newGinContext(http.MethodPost, "/timetables/tt-1/exports", []byte(`{"format":"csv","view":"grid"}`))
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	c.Request.Header.Set(middleware.ActorHeader, "planner-7")

	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, "tt-1", mock.versionID)
	require.Equal(t, "planner-7", mock.actor)
}

func TestExportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &ExportHandler{jobs: &exportJobsMock{
		statusResp: &dto.ExportStatusResponse{ID: "job-1", Status: models.ExportStatusFinished, Progress: 100},
	}}
	c, w := newGinContext(http.MethodGet, "/exports/job-1", nil)
	c.Params = gin.Params{{Key: "jobId", Value: "job-1"}}

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "timetable*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("Day,Period\n")
	_, _ = file.Seek(0, 0)

	handler := &ExportHandler{jobs: &exportJobsMock{
		download: &service.ExportDownload{
			File:        file,
			Filename:    "timetable.csv",
			ContentType: "text/csv",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}}
	c, w := newGinContext(http.MethodGet, "/exports/download/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "timetable.csv")
	require.Equal(t, "Day,Period\n", w.Body.String())
}

func TestExportHandlerDownloadForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &ExportHandler{jobs: &exportJobsMock{
		downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token"),
	}}
	c, w := newGinContext(http.MethodGet, "/exports/download/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(nil, map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")
}
