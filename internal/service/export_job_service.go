package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
)

// ExportJobType tags queue jobs produced by ExportJobService.
const ExportJobType = "timetable_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type versionFinder interface {
	FindByID(ctx context.Context, id string) (*models.TimetableVersion, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportJobService orchestrates the export job lifecycle.
type ExportJobService struct {
	repo     exportJobStore
	versions versionFinder
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ExportJobServiceConfig
}

// ExportJobServiceConfig governs recovery and cleanup.
type ExportJobServiceConfig struct {
	ResultTTL time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, versions versionFinder, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		repo:     repo,
		versions: versions,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob persists an export request for a stored version and enqueues it.
func (s *ExportJobService) CreateJob(ctx context.Context, versionID string, req dto.CreateExportRequest, actorID string) (*dto.ExportJobResponse, error) {
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	view := req.View
	if view == "" {
		view = models.ExportViewList
	}
	if view != models.ExportViewList && view != models.ExportViewGrid {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export view")
	}
	if _, err := s.versions.FindByID(ctx, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}

	job := &models.ExportJob{
		VersionID: versionID,
		Params: models.ExportJobParams{
			Format:    string(format),
			View:      view,
			FacultyID: strings.TrimSpace(req.FacultyID),
			RoomID:    strings.TrimSpace(req.RoomID),
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ExportJobService) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.ExportStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil && *job.ResultURL != "" {
		resp.DownloadURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	contentType := "application/octet-stream"
	if format, err := export.ParseFormat(job.Params.Format); err == nil {
		if renderer, err := export.RendererFor(format); err == nil {
			contentType = renderer.ContentType()
		}
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// MarkExhausted records a job that ran out of retries. Wired as the queue's exhausted hook.
func (s *ExportJobService) MarkExhausted(ctx context.Context, job jobs.Job, cause error) {
	msg := "export failed"
	if cause != nil {
		msg = cause.Error()
	}
	s.markFailed(ctx, job.ID, msg)
}

// CleanupExpired removes export files whose jobs finished more than ResultTTL ago.
func (s *ExportJobService) CleanupExpired(ctx context.Context) error {
	const batch = 100
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
	if err != nil {
		return err
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		token := extractToken(*job.ResultURL)
		if token == "" {
			continue
		}
		_, relPath, _, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(relPath); err != nil {
			s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	removed, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		s.logger.Sugar().Infow("expired exports removed", "files", len(removed))
	}
	return nil
}

func (s *ExportJobService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *ExportJobService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark job failed", "job_id", id, "error", err)
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ExportWorker bridges queue jobs to ExportService.
type ExportWorker struct {
	repo     exportJobStore
	exporter exportGenerator
	logger   *zap.Logger
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{repo: repo, exporter: exporter, logger: logger}
}

// Handle processes a queue job. Failures are left QUEUED for the queue to retry.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		queued := models.ExportStatusQueued
		reset := 0
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
		}
		return err
	}
	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.logger.Sugar().Infow("timetable export finished", "job_id", job.ID, "format", result.Format)
	return nil
}
