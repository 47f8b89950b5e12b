package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

const timetableVersionColumns = `id, term_id, program_id, version, status, meta, created_at, updated_at`

// TimetableVersionRepository persists versioned timetables.
type TimetableVersionRepository struct {
	db *sqlx.DB
}

// NewTimetableVersionRepository constructs repository.
func NewTimetableVersionRepository(db *sqlx.DB) *TimetableVersionRepository {
	return &TimetableVersionRepository{db: db}
}

func (r *TimetableVersionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a timetable assigning the next version for the term-program pair.
func (r *TimetableVersionRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error {
	if version == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if version.TermID == "" || version.ProgramID == "" {
		return fmt.Errorf("term_id and program_id are required")
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Status == "" {
		version.Status = models.TimetableStatusDraft
	}
	if len(version.Meta) == 0 {
		version.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if version.CreatedAt.IsZero() {
		version.CreatedAt = now
	}
	version.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE term_id = $1 AND program_id = $2`
	if err := sqlx.GetContext(ctx, target, &version.Version, nextVersionQuery, version.TermID, version.ProgramID); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_versions (id, term_id, program_id, version, status, meta, created_at, updated_at)
VALUES (:id, :term_id, :program_id, :version, :status, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, version); err != nil {
		return fmt.Errorf("insert timetable version: %w", err)
	}
	return nil
}

// ListByTermProgram returns all versions for the provided term-program pair.
func (r *TimetableVersionRepository) ListByTermProgram(ctx context.Context, termID, programID string) ([]models.TimetableVersion, error) {
	query := `SELECT ` + timetableVersionColumns + `
FROM timetable_versions WHERE term_id = $1 AND program_id = $2 ORDER BY version DESC`
	var versions []models.TimetableVersion
	if err := r.db.SelectContext(ctx, &versions, query, termID, programID); err != nil {
		return nil, fmt.Errorf("list timetable versions: %w", err)
	}
	return versions, nil
}

// FindByID loads a timetable version by its identifier.
func (r *TimetableVersionRepository) FindByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	query := `SELECT ` + timetableVersionColumns + ` FROM timetable_versions WHERE id = $1`
	var version models.TimetableVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// Delete removes a stored version. Slots cascade.
func (r *TimetableVersionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM timetable_versions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable version rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus updates the status (and optionally meta) of a version.
func (r *TimetableVersionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE timetable_versions SET status = $1, meta = $2, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE timetable_versions SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchivePublished moves every published version of the pair except keepID to ARCHIVED.
func (r *TimetableVersionRepository) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termID, programID, keepID string) (int64, error) {
	const query = `UPDATE timetable_versions SET status = $1, updated_at = $2
WHERE term_id = $3 AND program_id = $4 AND status = $5 AND id <> $6`
	result, err := r.exec(exec).ExecContext(ctx, query,
		models.TimetableStatusArchived, time.Now().UTC(), termID, programID, models.TimetableStatusPublished, keepID)
	if err != nil {
		return 0, fmt.Errorf("archive published timetables: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive published rows affected: %w", err)
	}
	return affected, nil
}
