package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

func TestExportJobServiceCreateJob(t *testing.T) {
	fx := newExportFixture(t)
	resp, err := fx.jobs.CreateJob(context.Background(), fx.versionID, dto.CreateExportRequest{Format: "excel", View: models.ExportViewGrid}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, ExportJobType, fx.queue.jobs[0].Type)

	stored := fx.repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "xlsx", stored.Params.Format)
	assert.Equal(t, models.ExportViewGrid, stored.Params.View)
}

func TestExportJobServiceCreateJobValidation(t *testing.T) {
	fx := newExportFixture(t)
	_, err := fx.jobs.CreateJob(context.Background(), fx.versionID, dto.CreateExportRequest{Format: "docx"}, "user-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.jobs.CreateJob(context.Background(), "missing", dto.CreateExportRequest{Format: "csv"}, "user-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, fx.queue.jobs)
}

func TestExportJobServiceEnqueueFailureMarksFailed(t *testing.T) {
	fx := newExportFixture(t)
	fx.queue.err = errors.New("queue down")
	_, err := fx.jobs.CreateJob(context.Background(), fx.versionID, dto.CreateExportRequest{Format: "csv"}, "user-1")
	require.Error(t, err)
	require.Len(t, fx.repo.jobs, 1)
	for _, job := range fx.repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		require.NotNil(t, job.FinishedAt)
	}
}

func TestExportWorkerLifecycleAndDownload(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()
	resp, err := fx.jobs.CreateJob(ctx, fx.versionID, dto.CreateExportRequest{Format: "csv"}, "user-1")
	require.NoError(t, err)

	worker := NewExportWorker(fx.repo, fx.exporter, zap.NewNop())
	require.NoError(t, worker.Handle(ctx, fx.queue.jobs[0]))

	status, err := fx.jobs.GetStatus(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.DownloadURL)
	assert.Nil(t, status.Error)

	download, err := fx.jobs.ResolveDownload(ctx, extractToken(*status.DownloadURL))
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, "text/csv", download.ContentType)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Mathematics")

	_, err = fx.jobs.ResolveDownload(ctx, "not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return nil, errors.New("render failed")
}

func TestExportWorkerFailureRequeuesThenExhausts(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()
	resp, err := fx.jobs.CreateJob(ctx, fx.versionID, dto.CreateExportRequest{Format: "pdf"}, "user-1")
	require.NoError(t, err)

	worker := NewExportWorker(fx.repo, failingGenerator{}, zap.NewNop())
	err = worker.Handle(ctx, fx.queue.jobs[0])
	require.Error(t, err)
	job := fx.repo.jobs[resp.ID]
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "render failed", *job.ErrorMessage)

	fx.jobs.MarkExhausted(ctx, jobs.Job{ID: resp.ID}, err)
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
}

func TestExportJobServiceRecoverAndCleanup(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()
	resp, err := fx.jobs.CreateJob(ctx, fx.versionID, dto.CreateExportRequest{Format: "csv"}, "user-1")
	require.NoError(t, err)

	fx.jobs.RecoverPendingJobs(ctx)
	assert.Len(t, fx.queue.jobs, 2)

	worker := NewExportWorker(fx.repo, fx.exporter, zap.NewNop())
	require.NoError(t, worker.Handle(ctx, fx.queue.jobs[0]))
	job := fx.repo.jobs[resp.ID]
	old := time.Now().Add(-2 * time.Hour)
	job.FinishedAt = &old

	_, relPath, _, err := fx.exporter.ParseToken(extractToken(*job.ResultURL), true)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.CleanupExpired(ctx))
	_, err = fx.exporter.Open(relPath)
	assert.Error(t, err)
}
