package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

const (
	sourceGenerator = "generator"
	sourceEditor    = "editor"
	solverAlgorithm = "backtracking_v1"
)

type timetableVersionRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error
	ListByTermProgram(ctx context.Context, termID, programID string) ([]models.TimetableVersion, error)
	FindByID(ctx context.Context, id string) (*models.TimetableVersion, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termID, programID, keepID string) (int64, error)
}

type timetableSlotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error
	ListByVersion(ctx context.Context, versionID string) ([]models.TimetableSlot, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TimetableGeneratorService builds timetable proposals and persists versions.
type TimetableGeneratorService struct {
	versions  timetableVersionRepository
	slots     timetableSlotRepository
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	store     *proposalStore
	cfg       TimetableGeneratorConfig
}

// TimetableGeneratorConfig governs generator behaviour.
type TimetableGeneratorConfig struct {
	ProposalTTL          time.Duration
	SolveTimeout         time.Duration
	MaxBacktrackAttempts int
	MaxRepairIterations  int
}

// NewTimetableGeneratorService wires generator dependencies.
func NewTimetableGeneratorService(
	versions timetableVersionRepository,
	slots timetableSlotRepository,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableGeneratorConfig,
) *TimetableGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &TimetableGeneratorService{
		versions:  versions,
		slots:     slots,
		tx:        tx,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		store:     newProposalStore(cfg.ProposalTTL),
		cfg:       cfg,
	}
}

// Generate runs the solver and keeps the result as a short-lived proposal.
func (s *TimetableGeneratorService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate timetable payload")
	}
	catalog, err := scheduler.NewCatalogFromProblem(req.Problem)
	if err != nil {
		return nil, err
	}
	opts, err := s.BuildOptions(req.Options)
	if err != nil {
		return nil, err
	}

	solveCtx, cancel := s.solveContext(ctx)
	defer cancel()
	result, err := scheduler.Generate(solveCtx, catalog, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveGeneration(result.Stats.Duration, len(result.PlacementFailures), result.Incomplete)

	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		TermID:      req.TermID,
		ProgramID:   req.ProgramID,
		Problem:     catalog.Problem(),
		Options:     opts.WithoutDeadline(),
		Assignments: result.Assignments.All(),
		Conflicts:   result.Conflicts,
		Quality:     result.Quality,
		Source:      sourceGenerator,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	s.logger.Info("timetable generated",
		zap.String("proposal_id", proposal.ProposalID),
		zap.String("term_id", req.TermID),
		zap.String("program_id", req.ProgramID),
		zap.Int("placed", result.Stats.Placed),
		zap.Int("failed", result.Stats.Failed),
		zap.Int("backtracks", result.Stats.Backtracks),
		zap.Bool("incomplete", result.Incomplete),
		zap.Float64("score", result.Quality.Score),
		zap.Duration("duration", result.Stats.Duration),
	)

	return &dto.GenerateTimetableResponse{
		ProposalID:        proposal.ProposalID,
		Revision:          scheduler.Fingerprint(result.Assignments),
		Score:             result.Quality.Score,
		Quality:           result.Quality,
		Assignments:       proposal.Assignments,
		Conflicts:         nonNilConflicts(result.Conflicts),
		PlacementFailures: result.PlacementFailures,
		Incomplete:        result.Incomplete,
		Stats:             result.Stats,
		Summary:           scheduler.Summarize(catalog, result.Assignments, result.Conflicts),
		ExpiresAt:         proposal.RequestedAt.Add(s.store.ttl),
	}, nil
}

// Detect reports the conflicts of an arbitrary assignment set.
func (s *TimetableGeneratorService) Detect(ctx context.Context, req dto.DetectConflictsRequest) (*dto.DetectConflictsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid detect conflicts payload")
	}
	catalog, set, err := buildCatalogAndSet(req.Problem, req.Assignments)
	if err != nil {
		return nil, err
	}
	conflicts, err := scheduler.DetectConflicts(catalog, set)
	if err != nil {
		return nil, err
	}
	return &dto.DetectConflictsResponse{
		Revision:  scheduler.Fingerprint(set),
		Conflicts: nonNilConflicts(conflicts),
		Summary:   scheduler.Summarize(catalog, set, conflicts),
	}, nil
}

// Repair relocates conflicting assignments of the supplied set.
func (s *TimetableGeneratorService) Repair(ctx context.Context, req dto.RepairTimetableRequest) (*dto.RepairTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid repair timetable payload")
	}
	catalog, set, err := buildCatalogAndSet(req.Problem, req.Assignments)
	if err != nil {
		return nil, err
	}
	opts, err := s.BuildOptions(req.Options)
	if err != nil {
		return nil, err
	}
	result, err := s.RunRepair(ctx, catalog, set, opts)
	if err != nil {
		return nil, err
	}
	return &dto.RepairTimetableResponse{
		Revision:    scheduler.Fingerprint(result.Assignments),
		Assignments: result.Assignments.All(),
		Conflicts:   nonNilConflicts(result.Conflicts),
		Moves:       result.Moves,
		Unresolved:  result.Unresolved,
		Iterations:  result.Iterations,
		Before:      result.Before,
		After:       result.After,
		Incomplete:  result.Incomplete,
	}, nil
}

// RunRepair executes repair under the configured solve timeout and records metrics.
func (s *TimetableGeneratorService) RunRepair(ctx context.Context, catalog *scheduler.Catalog, set *scheduler.AssignmentSet, opts scheduler.Options) (*scheduler.RepairResult, error) {
	solveCtx, cancel := s.solveContext(ctx)
	defer cancel()
	start := time.Now()
	result, err := scheduler.Repair(solveCtx, catalog, set, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRepair(time.Since(start), len(result.Moves), len(result.Unresolved), result.Incomplete)
	s.logger.Debug("timetable repaired",
		zap.Int("before", result.Before),
		zap.Int("after", result.After),
		zap.Int("moves", len(result.Moves)),
		zap.Int("iterations", result.Iterations),
	)
	return result, nil
}

// Save persists a proposal as a new timetable version.
func (s *TimetableGeneratorService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	record, err := s.persist(ctx, proposal, req.Publish)
	if err != nil {
		return nil, err
	}
	s.store.Delete(req.ProposalID)
	return &dto.SaveTimetableResponse{VersionID: record.ID, Version: record.Version, Status: record.Status}, nil
}

// SaveSnapshot persists an assignment set produced outside the proposal store, such as an editor session.
func (s *TimetableGeneratorService) SaveSnapshot(ctx context.Context, termID, programID string, catalog *scheduler.Catalog, set *scheduler.AssignmentSet, opts scheduler.Options, publish bool) (*dto.SaveTimetableResponse, error) {
	if termID == "" || programID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and programId are required to save a timetable")
	}
	conflicts, err := scheduler.DetectConflicts(catalog, set)
	if err != nil {
		return nil, err
	}
	record, err := s.persist(ctx, timetableProposal{
		TermID:      termID,
		ProgramID:   programID,
		Problem:     catalog.Problem(),
		Options:     opts.WithoutDeadline(),
		Assignments: set.All(),
		Conflicts:   conflicts,
		Quality:     scheduler.Evaluate(catalog, set, len(conflicts), opts),
		Source:      sourceEditor,
		RequestedAt: time.Now().UTC(),
	}, publish)
	if err != nil {
		return nil, err
	}
	return &dto.SaveTimetableResponse{VersionID: record.ID, Version: record.Version, Status: record.Status}, nil
}

func (s *TimetableGeneratorService) persist(ctx context.Context, proposal timetableProposal, publish bool) (record *models.TimetableVersion, err error) {
	if publish && len(proposal.Conflicts) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable contains unresolved conflicts")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	metaBytes, marshalErr := json.Marshal(timetableMeta{
		Score:     proposal.Quality.Score,
		Quality:   proposal.Quality,
		Conflicts: len(proposal.Conflicts),
		Options:   proposal.Options,
		Problem:   proposal.Problem,
		Source:    proposal.Source,
		Generated: proposal.RequestedAt,
		Algorithm: solverAlgorithm,
	})
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	started := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status := models.TimetableStatusDraft
	if publish {
		status = models.TimetableStatusPublished
	}
	record = &models.TimetableVersion{
		TermID:    proposal.TermID,
		ProgramID: proposal.ProgramID,
		Status:    status,
		Meta:      types.JSONText(metaBytes),
	}
	if err = s.versions.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable version")
		return nil, err
	}

	slotModels := make([]models.TimetableSlot, 0, len(proposal.Assignments))
	for _, a := range proposal.Assignments {
		slot := models.TimetableSlot{
			VersionID:    record.ID,
			AssignmentID: a.ID,
			CourseID:     a.CourseID,
			FacultyID:    a.FacultyID,
			RoomID:       a.RoomID,
			DayOfWeek:    a.Slot.Day,
			Period:       a.Slot.Period,
		}
		if a.Notes != "" {
			notes := a.Notes
			slot.Notes = &notes
		}
		slotModels = append(slotModels, slot)
	}
	if err = s.slots.UpsertBatch(ctx, tx, slotModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable slots")
		return nil, err
	}

	if publish {
		if _, err = s.versions.ArchivePublished(ctx, tx, record.TermID, record.ProgramID, record.ID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous timetable")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	s.metrics.ObserveDBQuery("timetable_persist", time.Since(started))

	s.logger.Info("timetable saved",
		zap.String("version_id", record.ID),
		zap.Int("version", record.Version),
		zap.String("status", string(record.Status)),
		zap.String("source", proposal.Source),
	)
	return record, nil
}

// List returns stored versions for a term-program pair, newest first.
func (s *TimetableGeneratorService) List(ctx context.Context, query dto.TimetableQuery) (*models.TimetableSummary, error) {
	if query.TermID == "" || query.ProgramID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and programId are required")
	}
	list, err := s.versions.ListByTermProgram(ctx, query.TermID, query.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	summary := &models.TimetableSummary{
		TermID:    query.TermID,
		ProgramID: query.ProgramID,
		Versions:  make([]models.TimetableVersionMeta, 0, len(list)),
	}
	for _, version := range list {
		var meta timetableMeta
		if len(version.Meta) > 0 {
			if err := json.Unmarshal(version.Meta, &meta); err != nil {
				s.logger.Warn("undecodable timetable meta", zap.String("version_id", version.ID), zap.Error(err))
			}
		}
		summary.Versions = append(summary.Versions, models.TimetableVersionMeta{
			ID:        version.ID,
			Version:   version.Version,
			Status:    version.Status,
			Score:     meta.Score,
			Conflicts: meta.Conflicts,
			CreatedAt: version.CreatedAt,
		})
		if version.Status == models.TimetableStatusPublished && summary.ActiveID == nil {
			id := version.ID
			summary.ActiveID = &id
		}
		if version.UpdatedAt.After(summary.UpdatedAt) {
			summary.UpdatedAt = version.UpdatedAt
		}
	}
	return summary, nil
}

// GetSlots returns the stored assignments of a version with their current conflicts.
func (s *TimetableGeneratorService) GetSlots(ctx context.Context, versionID string) (*dto.TimetableSlotsResponse, error) {
	version, catalog, set, err := s.LoadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	conflicts, err := scheduler.DetectConflicts(catalog, set)
	if err != nil {
		return nil, err
	}
	return &dto.TimetableSlotsResponse{
		Version:     *version,
		Assignments: set.All(),
		Conflicts:   nonNilConflicts(conflicts),
		Revision:    scheduler.Fingerprint(set),
	}, nil
}

// LoadVersion rebuilds the catalog and assignment set a version was saved with.
func (s *TimetableGeneratorService) LoadVersion(ctx context.Context, versionID string) (*models.TimetableVersion, *scheduler.Catalog, *scheduler.AssignmentSet, error) {
	if versionID == "" {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	started := time.Now()
	version, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	var meta timetableMeta
	if err := json.Unmarshal(version.Meta, &meta); err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode timetable metadata")
	}
	catalog, err := scheduler.NewCatalogFromProblem(meta.Problem)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable catalog is invalid")
	}
	rows, err := s.slots.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	s.metrics.ObserveDBQuery("timetable_load", time.Since(started))
	assignments := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.Assignment())
	}
	set, err := scheduler.NewAssignmentSet(assignments)
	if err != nil {
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable slots are inconsistent")
	}
	return version, catalog, set, nil
}

// VersionOptions returns the options a version was generated with.
func (s *TimetableGeneratorService) VersionOptions(version *models.TimetableVersion) scheduler.Options {
	var meta timetableMeta
	if version == nil || json.Unmarshal(version.Meta, &meta) != nil || meta.Options.PriorityWeights == nil {
		return s.defaultOptions()
	}
	return meta.Options.WithoutDeadline()
}

// Delete removes a draft timetable version.
func (s *TimetableGeneratorService) Delete(ctx context.Context, versionID string) error {
	record, err := s.versions.FindByID(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrFinalized, "only draft timetables can be deleted")
	}
	if err := s.versions.Delete(ctx, versionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	return nil
}

// Publish promotes a stored draft to the published version of its term and program.
func (s *TimetableGeneratorService) Publish(ctx context.Context, versionID string) (resp *dto.SaveTimetableResponse, err error) {
	version, catalog, set, err := s.LoadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status != models.TimetableStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "only draft timetables can be published")
	}
	conflicts, err := scheduler.DetectConflicts(catalog, set)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable contains unresolved conflicts")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	started := time.Now()
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	archived, err := s.versions.ArchivePublished(ctx, tx, version.TermID, version.ProgramID, version.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive previous timetable")
		return nil, err
	}
	if err = s.versions.UpdateStatus(ctx, tx, version.ID, models.TimetableStatusPublished, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return nil, err
	}
	s.metrics.ObserveDBQuery("timetable_publish", time.Since(started))

	s.logger.Info("timetable published",
		zap.String("version_id", version.ID),
		zap.Int("version", version.Version),
		zap.Int64("archived", archived),
	)
	return &dto.SaveTimetableResponse{VersionID: version.ID, Version: version.Version, Status: models.TimetableStatusPublished}, nil
}

func (s *TimetableGeneratorService) proposal(id string) (timetableProposal, bool) {
	return s.store.Get(id)
}

// PurgeExpiredProposals drops proposals older than the TTL.
func (s *TimetableGeneratorService) PurgeExpiredProposals(context.Context) error {
	if removed := s.store.Purge(); removed > 0 {
		s.logger.Debug("expired proposals purged", zap.Int("count", removed))
	}
	return nil
}

// BuildOptions overlays request options on the configured defaults.
func (s *TimetableGeneratorService) BuildOptions(in dto.GenerationOptions) (scheduler.Options, error) {
	opts := s.defaultOptions()
	if in.PrioritizeCore != nil {
		opts.PrioritizeCore = *in.PrioritizeCore
	}
	if in.RespectFacultyPreference != nil {
		opts.RespectFacultyPreference = *in.RespectFacultyPreference
	}
	if in.OptimizeRoomUtilization != nil {
		opts.OptimizeRoomUtilization = *in.OptimizeRoomUtilization
	}
	if in.MaxBacktrackAttempts != 0 {
		opts.MaxBacktrackAttempts = in.MaxBacktrackAttempts
	}
	if in.MaxRepairIterations != 0 {
		opts.MaxRepairIterations = in.MaxRepairIterations
	}
	opts.RandomSeed = in.RandomSeed
	if in.Deadline != nil {
		opts.Deadline = *in.Deadline
	}
	if in.Weights.Workload != nil {
		opts.Weights.Workload = *in.Weights.Workload
	}
	if in.Weights.Utilization != nil {
		opts.Weights.Utilization = *in.Weights.Utilization
	}
	if in.Weights.Preference != nil {
		opts.Weights.Preference = *in.Weights.Preference
	}
	if in.Weights.DaySpread != nil {
		opts.Weights.DaySpread = *in.Weights.DaySpread
	}
	for courseType, weight := range in.PriorityWeights {
		if !courseType.Valid() {
			return scheduler.Options{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown course type %q in priority weights", courseType))
		}
		opts.PriorityWeights[courseType] = weight
	}
	if len(in.Preferences) > 0 {
		opts.Preferences = in.Preferences
	}
	if err := opts.Validate(); err != nil {
		return scheduler.Options{}, err
	}
	return opts, nil
}

func (s *TimetableGeneratorService) defaultOptions() scheduler.Options {
	opts := scheduler.DefaultOptions()
	if s.cfg.MaxBacktrackAttempts != 0 {
		opts.MaxBacktrackAttempts = s.cfg.MaxBacktrackAttempts
	}
	if s.cfg.MaxRepairIterations > 0 {
		opts.MaxRepairIterations = s.cfg.MaxRepairIterations
	}
	return opts
}

func (s *TimetableGeneratorService) solveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.SolveTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.SolveTimeout)
	}
	return context.WithCancel(ctx)
}

func buildCatalogAndSet(problem models.TimetableProblem, assignments []models.Assignment) (*scheduler.Catalog, *scheduler.AssignmentSet, error) {
	catalog, err := scheduler.NewCatalogFromProblem(problem)
	if err != nil {
		return nil, nil, err
	}
	set, err := scheduler.NewAssignmentSet(assignments)
	if err != nil {
		return nil, nil, err
	}
	return catalog, set, nil
}

func nonNilConflicts(conflicts []models.Conflict) []models.Conflict {
	if conflicts == nil {
		return []models.Conflict{}
	}
	return conflicts
}

// --- Proposal cache ---

type timetableMeta struct {
	Score     float64                 `json:"score"`
	Quality   scheduler.Quality       `json:"quality"`
	Conflicts int                     `json:"conflicts"`
	Options   scheduler.Options       `json:"options"`
	Problem   models.TimetableProblem `json:"problem"`
	Source    string                  `json:"source"`
	Generated time.Time               `json:"generated"`
	Algorithm string                  `json:"algorithm"`
}

type timetableProposal struct {
	ProposalID  string
	TermID      string
	ProgramID   string
	Problem     models.TimetableProblem
	Options     scheduler.Options
	Assignments []models.Assignment
	Conflicts   []models.Conflict
	Quality     scheduler.Quality
	Source      string
	RequestedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *proposalStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, proposal := range s.items {
		if time.Since(proposal.RequestedAt) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
