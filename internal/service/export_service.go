package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/export"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

type timetableLoader interface {
	LoadVersion(ctx context.Context, versionID string) (*models.TimetableVersion, *scheduler.Catalog, *scheduler.AssignmentSet, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       export.Format
	ExpiresAt    time.Time
}

// ExportService renders stored timetables and persists the files.
type ExportService struct {
	loader  timetableLoader
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(loader timetableLoader, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		loader:  loader,
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the job's timetable version and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	format, err := export.ParseFormat(job.Params.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, err
	}
	version, catalog, set, err := s.loader.LoadVersion(ctx, job.VersionID)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Timetable %s/%s v%d", version.TermID, version.ProgramID, version.Version)
	payload, err := renderer.Render(TimetableDataset(catalog, set, job.Params, title))
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(version, job, format), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/exports/download/%s", signedURL, token)

	s.logger.Debug("timetable export rendered",
		zap.String("job_id", job.ID),
		zap.String("version_id", version.ID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(payload)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(version *models.TimetableVersion, job *models.ExportJob, format export.Format) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	view := job.Params.View
	if view == "" {
		view = models.ExportViewList
	}
	return fmt.Sprintf("timetable_%s_%s_v%d_%s_%s.%s",
		sanitizeFilename(version.TermID), sanitizeFilename(version.ProgramID), version.Version, view, timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
