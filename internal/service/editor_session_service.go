package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

const editorSessionKeyPrefix = "timetable:editor:session:"

// EditorSessionConfig governs session lifetime and undo depth.
type EditorSessionConfig struct {
	SessionTTL   time.Duration
	HistoryLimit int
}

type editorSession struct {
	mu        sync.Mutex
	id        string
	termID    string
	programID string
	sourceID  string
	opts      scheduler.Options
	editor    *scheduler.Editor
	expiresAt time.Time
}

// editorSessionSnapshot is the cached form of a session. Undo history is not kept.
type editorSessionSnapshot struct {
	ID          string                  `json:"id"`
	TermID      string                  `json:"termId"`
	ProgramID   string                  `json:"programId"`
	SourceID    string                  `json:"sourceId"`
	Problem     models.TimetableProblem `json:"problem"`
	Assignments []models.Assignment     `json:"assignments"`
	Options     scheduler.Options       `json:"options"`
	ExpiresAt   time.Time               `json:"expiresAt"`
}

// EditorSessionService keeps interactive editing sessions over timetables.
type EditorSessionService struct {
	generator *TimetableGeneratorService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       EditorSessionConfig
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*editorSession
}

// NewEditorSessionService constructs the service. cache may be nil.
func NewEditorSessionService(generator *TimetableGeneratorService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EditorSessionConfig) *EditorSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	return &EditorSessionService{
		generator: generator,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*editorSession),
	}
}

// Open starts a session from a proposal, a stored version or an inline problem.
func (s *EditorSessionService) Open(ctx context.Context, req dto.OpenSessionRequest) (*dto.EditorSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid editor session payload")
	}
	sources := 0
	for _, present := range []bool{req.ProposalID != "", req.VersionID != "", req.Problem != nil} {
		if present {
			sources++
		}
	}
	if sources != 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of proposalId, versionId or problem is required")
	}

	sess := &editorSession{id: uuid.NewString(), termID: req.TermID, programID: req.ProgramID}
	var (
		catalog *scheduler.Catalog
		set     *scheduler.AssignmentSet
		err     error
	)
	switch {
	case req.ProposalID != "":
		proposal, ok := s.generator.proposal(req.ProposalID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
		}
		if catalog, set, err = buildCatalogAndSet(proposal.Problem, proposal.Assignments); err != nil {
			return nil, err
		}
		sess.termID, sess.programID = proposal.TermID, proposal.ProgramID
		sess.sourceID = proposal.ProposalID
		sess.opts = proposal.Options
	case req.VersionID != "":
		var version *models.TimetableVersion
		if version, catalog, set, err = s.generator.LoadVersion(ctx, req.VersionID); err != nil {
			return nil, err
		}
		sess.termID, sess.programID = version.TermID, version.ProgramID
		sess.sourceID = version.ID
		sess.opts = s.generator.VersionOptions(version)
	default:
		if catalog, set, err = buildCatalogAndSet(*req.Problem, req.Assignments); err != nil {
			return nil, err
		}
		if sess.opts, err = s.generator.BuildOptions(req.Options); err != nil {
			return nil, err
		}
	}
	sess.opts = sess.opts.WithoutDeadline()

	if sess.editor, err = scheduler.NewEditor(catalog, set, scheduler.WithHistoryLimit(s.cfg.HistoryLimit)); err != nil {
		return nil, err
	}
	sess.expiresAt = s.now().Add(s.cfg.SessionTTL)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(active)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.store(ctx, sess)
	s.logger.Info("editor session opened",
		zap.String("session_id", sess.id),
		zap.String("source_id", sess.sourceID),
		zap.Int("assignments", set.Len()),
	)
	return s.describe(sess, nil)
}

// Get returns the current state of a session.
func (s *EditorSessionService) Get(ctx context.Context, id string) (*dto.EditorSessionResponse, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.describe(sess, nil)
}

// Move relocates an assignment to another slot.
func (s *EditorSessionService) Move(ctx context.Context, id string, req dto.MoveAssignmentRequest) (*dto.EditorSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	return s.apply(ctx, id, "move", func(e *scheduler.Editor) error {
		return e.Move(req.AssignmentID, req.Slot)
	})
}

// Swap exchanges the room and slot of two assignments.
func (s *EditorSessionService) Swap(ctx context.Context, id string, req dto.SwapAssignmentsRequest) (*dto.EditorSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}
	return s.apply(ctx, id, "swap", func(e *scheduler.Editor) error {
		return e.Swap(req.First, req.Second)
	})
}

// Insert adds an assignment, generating its id when empty.
func (s *EditorSessionService) Insert(ctx context.Context, id string, req dto.InsertAssignmentRequest) (*dto.EditorSessionResponse, error) {
	var inserted models.Assignment
	resp, err := s.apply(ctx, id, "insert", func(e *scheduler.Editor) error {
		var err error
		inserted, err = e.Insert(req.Assignment)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp.Inserted = &inserted
	return resp, nil
}

// Update replaces an assignment with the same id.
func (s *EditorSessionService) Update(ctx context.Context, id string, req dto.UpdateAssignmentRequest) (*dto.EditorSessionResponse, error) {
	if req.Assignment.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment id is required")
	}
	return s.apply(ctx, id, "update", func(e *scheduler.Editor) error {
		return e.Update(req.Assignment)
	})
}

// Remove deletes an assignment.
func (s *EditorSessionService) Remove(ctx context.Context, id string, req dto.RemoveAssignmentRequest) (*dto.EditorSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remove payload")
	}
	return s.apply(ctx, id, "remove", func(e *scheduler.Editor) error {
		return e.Remove(req.AssignmentID)
	})
}

// Undo reverts the most recent mutation.
func (s *EditorSessionService) Undo(ctx context.Context, id string) (*dto.EditorSessionResponse, error) {
	return s.apply(ctx, id, "undo", func(e *scheduler.Editor) error {
		return e.Undo()
	})
}

// Repair runs conflict repair over the session and applies the result as one undoable step.
func (s *EditorSessionService) Repair(ctx context.Context, id string, req dto.RepairSessionRequest) (*dto.EditorSessionResponse, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := sess.opts
	if req.Options != nil {
		if opts, err = s.generator.BuildOptions(*req.Options); err != nil {
			return nil, err
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	before, err := sess.editor.Conflicts()
	if err != nil {
		return nil, err
	}
	result, err := s.generator.RunRepair(ctx, sess.editor.Catalog(), sess.editor.Assignments(), opts)
	s.metrics.RecordEdit("repair", err)
	if err != nil {
		return nil, err
	}
	if len(result.Moves) > 0 {
		if err := sess.editor.Replace(result.Assignments); err != nil {
			return nil, err
		}
	}
	diff := scheduler.DiffConflicts(before, result.Conflicts)
	s.touch(ctx, sess)

	resp, err := s.describe(sess, &diff)
	if err != nil {
		return nil, err
	}
	resp.Repair = &dto.RepairSummary{
		Moves:      result.Moves,
		Unresolved: result.Unresolved,
		Iterations: result.Iterations,
		Before:     result.Before,
		After:      result.After,
		Incomplete: result.Incomplete,
	}
	return resp, nil
}

// Commit saves the session's current set as a new timetable version.
func (s *EditorSessionService) Commit(ctx context.Context, id string, req dto.CommitSessionRequest) (*dto.SaveTimetableResponse, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	saved, err := s.generator.SaveSnapshot(ctx, sess.termID, sess.programID, sess.editor.Catalog(), sess.editor.Assignments(), sess.opts, req.Publish)
	if err != nil {
		return nil, err
	}
	s.logger.Info("editor session committed",
		zap.String("session_id", sess.id),
		zap.String("version_id", saved.VersionID),
		zap.Bool("publish", req.Publish),
	)
	return saved, nil
}

// Close discards a session.
func (s *EditorSessionService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(active)

	cached := false
	if !ok && s.cache.Enabled() {
		var snap editorSessionSnapshot
		cached, _ = s.cache.Get(ctx, editorSessionKeyPrefix+id, &snap)
	}
	if !ok && !cached {
		return appErrors.Clone(appErrors.ErrNotFound, "editor session not found or expired")
	}
	_ = s.cache.Delete(ctx, editorSessionKeyPrefix+id)
	return nil
}

// PurgeExpired drops sessions past their TTL.
func (s *EditorSessionService) PurgeExpired(ctx context.Context) error {
	now := s.now()
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := now.After(sess.expiresAt)
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(active)
	if removed > 0 {
		s.logger.Debug("expired editor sessions purged", zap.Int("count", removed))
	}
	return nil
}

func (s *EditorSessionService) apply(ctx context.Context, id, operation string, fn func(*scheduler.Editor) error) (*dto.EditorSessionResponse, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	before, err := sess.editor.Conflicts()
	if err != nil {
		return nil, err
	}
	err = fn(sess.editor)
	s.metrics.RecordEdit(operation, err)
	if err != nil {
		return nil, err
	}
	after, err := sess.editor.Conflicts()
	if err != nil {
		return nil, err
	}
	diff := scheduler.DiffConflicts(before, after)
	s.touch(ctx, sess)
	return s.describeWith(sess, after, &diff), nil
}

func (s *EditorSessionService) session(ctx context.Context, id string) (*editorSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.mu.Lock()
		expired := s.now().After(sess.expiresAt)
		sess.mu.Unlock()
		if !expired {
			return sess, nil
		}
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrNotFound, "editor session not found or expired")
	}
	return s.restore(ctx, id)
}

// restore rebuilds a session written by another instance. Undo history starts empty.
func (s *EditorSessionService) restore(ctx context.Context, id string) (*editorSession, error) {
	var snap editorSessionSnapshot
	hit, err := s.cache.Get(ctx, editorSessionKeyPrefix+id, &snap)
	if err != nil || !hit || s.now().After(snap.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "editor session not found or expired")
	}
	catalog, set, err := buildCatalogAndSet(snap.Problem, snap.Assignments)
	if err != nil {
		return nil, err
	}
	editor, err := scheduler.NewEditor(catalog, set, scheduler.WithHistoryLimit(s.cfg.HistoryLimit))
	if err != nil {
		return nil, err
	}
	sess := &editorSession{
		id:        snap.ID,
		termID:    snap.TermID,
		programID: snap.ProgramID,
		sourceID:  snap.SourceID,
		opts:      snap.Options.WithoutDeadline(),
		editor:    editor,
		expiresAt: snap.ExpiresAt,
	}

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		sess = existing
	} else {
		s.sessions[id] = sess
	}
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(active)
	s.logger.Debug("editor session restored from cache", zap.String("session_id", id))
	return sess, nil
}

// touch extends the TTL and writes the session through. Caller holds sess.mu.
func (s *EditorSessionService) touch(ctx context.Context, sess *editorSession) {
	sess.expiresAt = s.now().Add(s.cfg.SessionTTL)
	s.store(ctx, sess)
}

func (s *EditorSessionService) store(ctx context.Context, sess *editorSession) {
	if !s.cache.Enabled() {
		return
	}
	snap := editorSessionSnapshot{
		ID:          sess.id,
		TermID:      sess.termID,
		ProgramID:   sess.programID,
		SourceID:    sess.sourceID,
		Problem:     sess.editor.Catalog().Problem(),
		Assignments: sess.editor.Assignments().All(),
		Options:     sess.opts,
		ExpiresAt:   sess.expiresAt,
	}
	_ = s.cache.Set(ctx, editorSessionKeyPrefix+sess.id, snap, s.cfg.SessionTTL)
}

// describe builds a response. Caller holds sess.mu.
func (s *EditorSessionService) describe(sess *editorSession, diff *scheduler.ConflictDiff) (*dto.EditorSessionResponse, error) {
	conflicts, err := sess.editor.Conflicts()
	if err != nil {
		return nil, err
	}
	return s.describeWith(sess, conflicts, diff), nil
}

func (s *EditorSessionService) describeWith(sess *editorSession, conflicts []models.Conflict, diff *scheduler.ConflictDiff) *dto.EditorSessionResponse {
	set := sess.editor.Assignments()
	return &dto.EditorSessionResponse{
		SessionID:    sess.id,
		Revision:     scheduler.Fingerprint(set),
		HistoryDepth: sess.editor.HistoryDepth(),
		Assignments:  set.All(),
		Conflicts:    nonNilConflicts(conflicts),
		Diff:         diff,
		Summary:      scheduler.Summarize(sess.editor.Catalog(), set, conflicts),
		ExpiresAt:    sess.expiresAt,
	}
}
