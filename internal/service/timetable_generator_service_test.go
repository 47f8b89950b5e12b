package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func TestTimetableGeneratorServiceGenerateSuccess(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	resp, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProposalID)
	assert.Len(t, resp.Assignments, 2)
	assert.Empty(t, resp.Conflicts)
	assert.Empty(t, resp.PlacementFailures)
	assert.False(t, resp.Incomplete)
	assert.Greater(t, resp.Score, 0.0)
	assert.Len(t, resp.Revision, 32)
	assert.Equal(t, 2, resp.Summary.TotalClasses)
}

func TestTimetableGeneratorServiceGenerateReportsPlacementFailure(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	resp, err := service.Generate(context.Background(), generateRequest(1))
	require.NoError(t, err)
	assert.Len(t, resp.Assignments, 1)
	require.Len(t, resp.PlacementFailures, 1)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, models.ConflictPlacementFailure, resp.Conflicts[0].Kind)
}

func TestTimetableGeneratorServiceGenerateValidation(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	req := generateRequest(2)
	req.TermID = ""
	_, err := service.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableGeneratorServiceGenerateRejectsNegativeWeights(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	negative := -1.0
	req := generateRequest(2)
	req.Options.Weights.Workload = &negative
	_, err := service.Generate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidWeights)
}

func TestTimetableGeneratorServiceGenerateRejectsUnknownEligibleFaculty(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	req := generateRequest(2)
	req.Problem.Courses[0].EligibleFaculty = []string{"ghost"}
	_, err := service.Generate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrReference)
}

func TestTimetableGeneratorServiceDetect(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	resp, err := service.Detect(context.Background(), dto.DetectConflictsRequest{
		Problem: testProblem(2),
		Assignments: []models.Assignment{
			{ID: "a1", CourseID: "math", FacultyID: "F2", RoomID: "R1", Slot: models.SlotKey{Day: 1, Period: 1}},
			{ID: "a2", CourseID: "english", FacultyID: "F2", RoomID: "R1", Slot: models.SlotKey{Day: 1, Period: 1}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Conflicts, 2)
	assert.Equal(t, models.ConflictFacultyDoubleBooking, resp.Conflicts[0].Kind)
	assert.Equal(t, models.ConflictRoomDoubleBooking, resp.Conflicts[1].Kind)
}

func TestTimetableGeneratorServiceDetectUnknownReference(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	_, err := service.Detect(context.Background(), dto.DetectConflictsRequest{
		Problem: testProblem(2),
		Assignments: []models.Assignment{
			{ID: "a1", CourseID: "math", FacultyID: "nobody", RoomID: "R1", Slot: models.SlotKey{Day: 1, Period: 1}},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrReference)
}

func TestTimetableGeneratorServiceRepair(t *testing.T) {
	service, _, _ := newGeneratorFixture(t, nil)

	resp, err := service.Repair(context.Background(), dto.RepairTimetableRequest{
		Problem: testProblem(2),
		Assignments: []models.Assignment{
			{ID: "a1", CourseID: "math", FacultyID: "F1", RoomID: "R1", Slot: models.SlotKey{Day: 1, Period: 1}},
			{ID: "a2", CourseID: "english", FacultyID: "F2", RoomID: "R1", Slot: models.SlotKey{Day: 1, Period: 1}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Before)
	assert.Equal(t, 0, resp.After)
	assert.Len(t, resp.Moves, 1)
	assert.Empty(t, resp.Conflicts)
}

func TestTimetableGeneratorServiceSaveDraft(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, versions, slots := newGeneratorFixture(t, tx)

	resp, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusDraft, saved.Status)
	assert.Equal(t, 1, saved.Version)
	assert.Len(t, slots.items[saved.VersionID], 2)
	require.Len(t, versions.items, 1)

	var meta timetableMeta
	require.NoError(t, json.Unmarshal(versions.items[0].Meta, &meta))
	assert.Equal(t, sourceGenerator, meta.Source)
	assert.Len(t, meta.Problem.Courses, 2)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: resp.ProposalID})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTimetableGeneratorServicePublishArchivesPrevious(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, versions, _ := newGeneratorFixture(t, tx)

	first, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)
	second, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err = service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: first.ProposalID, Publish: true})
	require.NoError(t, err)
	_, err = service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: second.ProposalID, Publish: true})
	require.NoError(t, err)

	require.Len(t, versions.items, 2)
	assert.Equal(t, models.TimetableStatusArchived, versions.items[0].Status)
	assert.Equal(t, models.TimetableStatusPublished, versions.items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorServicePublishRefusesConflicts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, _, _ := newGeneratorFixture(t, tx)

	resp, err := service.Generate(context.Background(), generateRequest(1))
	require.NoError(t, err)

	_, err = service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: resp.ProposalID, Publish: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorServicePublishDraft(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, versions, _ := newGeneratorFixture(t, tx)

	first, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)
	second, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	published, err := service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: first.ProposalID, Publish: true})
	require.NoError(t, err)
	draft, err := service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: second.ProposalID})
	require.NoError(t, err)

	resp, err := service.Publish(context.Background(), draft.VersionID)
	require.NoError(t, err)
	assert.Equal(t, draft.VersionID, resp.VersionID)
	assert.Equal(t, models.TimetableStatusPublished, resp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	statuses := map[string]models.TimetableStatus{}
	for _, item := range versions.items {
		statuses[item.ID] = item.Status
	}
	assert.Equal(t, models.TimetableStatusArchived, statuses[published.VersionID])
	assert.Equal(t, models.TimetableStatusPublished, statuses[draft.VersionID])

	_, err = service.Publish(context.Background(), draft.VersionID)
	assert.ErrorIs(t, err, appErrors.ErrFinalized)
	_, err = service.Publish(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTimetableGeneratorServicePublishDraftWithConflicts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, versions, slots := newGeneratorFixture(t, tx)

	meta, err := json.Marshal(timetableMeta{Problem: testProblem(3)})
	require.NoError(t, err)
	versions.items = []models.TimetableVersion{
		{ID: "tt-1", TermID: "term-1", ProgramID: "prog-1", Version: 1, Status: models.TimetableStatusDraft, Meta: types.JSONText(meta)},
	}
	slots.items = map[string][]models.TimetableSlot{
		"tt-1": {
			{VersionID: "tt-1", AssignmentID: "a1", CourseID: "math", FacultyID: "F2", RoomID: "R1", DayOfWeek: 1, Period: 1},
			{VersionID: "tt-1", AssignmentID: "a2", CourseID: "english", FacultyID: "F2", RoomID: "R1", DayOfWeek: 1, Period: 1},
		},
	}

	_, err = service.Publish(context.Background(), "tt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.TimetableStatusDraft, versions.items[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableGeneratorServiceGetSlotsRoundTrip(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, _, _ := newGeneratorFixture(t, tx)

	resp, err := service.Generate(context.Background(), generateRequest(2))
	require.NoError(t, err)
	mock.ExpectBegin()
	mock.ExpectCommit()
	saved, err := service.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: resp.ProposalID})
	require.NoError(t, err)

	slots, err := service.GetSlots(context.Background(), saved.VersionID)
	require.NoError(t, err)
	assert.Equal(t, resp.Revision, slots.Revision)
	assert.Empty(t, slots.Conflicts)

	_, err = service.GetSlots(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTimetableGeneratorServiceListAndDelete(t *testing.T) {
	service, versions, _ := newGeneratorFixture(t, nil)
	versions.items = []models.TimetableVersion{
		{ID: "tt-2", TermID: "term-1", ProgramID: "prog-1", Version: 2, Status: models.TimetableStatusPublished, Meta: types.JSONText(`{"score":88.5,"conflicts":0}`)},
		{ID: "tt-1", TermID: "term-1", ProgramID: "prog-1", Version: 1, Status: models.TimetableStatusDraft, Meta: types.JSONText(`{"score":70,"conflicts":2}`)},
	}

	summary, err := service.List(context.Background(), dto.TimetableQuery{TermID: "term-1", ProgramID: "prog-1"})
	require.NoError(t, err)
	require.Len(t, summary.Versions, 2)
	require.NotNil(t, summary.ActiveID)
	assert.Equal(t, "tt-2", *summary.ActiveID)
	assert.Equal(t, 88.5, summary.Versions[0].Score)
	assert.Equal(t, 2, summary.Versions[1].Conflicts)

	err = service.Delete(context.Background(), "tt-2")
	assert.ErrorIs(t, err, appErrors.ErrFinalized)
	require.NoError(t, service.Delete(context.Background(), "tt-1"))
	assert.ErrorIs(t, service.Delete(context.Background(), "tt-1"), appErrors.ErrNotFound)

	_, err = service.List(context.Background(), dto.TimetableQuery{TermID: "term-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestProposalStorePurge(t *testing.T) {
	store := newProposalStore(time.Minute)
	store.Save(timetableProposal{ProposalID: "fresh", RequestedAt: time.Now()})
	store.Save(timetableProposal{ProposalID: "stale", RequestedAt: time.Now().Add(-time.Hour)})

	assert.Equal(t, 1, store.Purge())
	_, ok := store.Get("fresh")
	assert.True(t, ok)
	_, ok = store.Get("stale")
	assert.False(t, ok)
}

// --- Fixtures ---

func testProblem(slotCount int) models.TimetableProblem {
	slots := []models.TimeSlot{{Day: 1, Period: 1}, {Day: 1, Period: 2}, {Day: 2, Period: 1}}
	return models.TimetableProblem{
		Courses: []models.Course{
			{ID: "math", Name: "Mathematics", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 40, Type: models.CourseTypeCore},
			{ID: "english", Name: "English", Subject: "English", WeeklyHours: 1, ExpectedStudents: 30, Type: models.CourseTypeCore},
		},
		Faculty: []models.Faculty{
			{ID: "F1", Name: "Ada", Subjects: []string{"Math"}},
			{ID: "F2", Name: "Grace", Subjects: []string{"Math", "English"}},
		},
		Rooms: []models.Room{{ID: "R1", Name: "Room 1", Capacity: 50}},
		Slots: slots[:slotCount],
	}
}

func generateRequest(slotCount int) dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		TermID:    "term-1",
		ProgramID: "prog-1",
		Problem:   testProblem(slotCount),
		Options:   dto.GenerationOptions{RandomSeed: 7},
	}
}

func newGeneratorFixture(t *testing.T, tx txProvider) (*TimetableGeneratorService, *timetableVersionRepoStub, *timetableSlotRepoStub) {
	t.Helper()
	if tx == nil {
		tx = noopTxProvider{}
	}
	versions := &timetableVersionRepoStub{}
	slots := &timetableSlotRepoStub{}
	service := NewTimetableGeneratorService(
		versions,
		slots,
		tx,
		NewMetricsService(),
		validator.New(),
		zap.NewNop(),
		TimetableGeneratorConfig{ProposalTTL: time.Hour, SolveTimeout: 5 * time.Second},
	)
	return service, versions, slots
}

type timetableVersionRepoStub struct {
	items []models.TimetableVersion
}

func (s *timetableVersionRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion) error {
	version.ID = fmt.Sprintf("tt-%d", len(s.items)+1)
	version.Version = len(s.items) + 1
	s.items = append(s.items, *version)
	return nil
}

func (s *timetableVersionRepoStub) ListByTermProgram(ctx context.Context, termID, programID string) ([]models.TimetableVersion, error) {
	return s.items, nil
}

func (s *timetableVersionRepoStub) FindByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	for _, item := range s.items {
		if item.ID == id {
			item := item
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timetableVersionRepoStub) Delete(ctx context.Context, id string) error {
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timetableVersionRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus, meta types.JSONText) error {
	for idx := range s.items {
		if s.items[idx].ID == id {
			s.items[idx].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timetableVersionRepoStub) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termID, programID, keepID string) (int64, error) {
	var affected int64
	for idx := range s.items {
		item := &s.items[idx]
		if item.TermID == termID && item.ProgramID == programID && item.ID != keepID && item.Status == models.TimetableStatusPublished {
			item.Status = models.TimetableStatusArchived
			affected++
		}
	}
	return affected, nil
}

type timetableSlotRepoStub struct {
	items map[string][]models.TimetableSlot
}

func (s *timetableSlotRepoStub) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.TimetableSlot) error {
	if s.items == nil {
		s.items = make(map[string][]models.TimetableSlot)
	}
	for _, slot := range slots {
		s.items[slot.VersionID] = append(s.items[slot.VersionID], slot)
	}
	return nil
}

func (s *timetableSlotRepoStub) ListByVersion(ctx context.Context, versionID string) ([]models.TimetableSlot, error) {
	return s.items[versionID], nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
