package dto

import (
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
)

// SoftWeights overrides individual soft-cost weights. Nil keeps the default.
type SoftWeights struct {
	Workload    *float64 `json:"workload"`
	Utilization *float64 `json:"utilization"`
	Preference  *float64 `json:"preference"`
	DaySpread   *float64 `json:"daySpread"`
}

// GenerationOptions mirrors scheduler.Options with request-friendly defaults.
type GenerationOptions struct {
	PrioritizeCore           *bool                       `json:"prioritizeCore"`
	RespectFacultyPreference *bool                       `json:"respectFacultyPreference"`
	OptimizeRoomUtilization  *bool                       `json:"optimizeRoomUtilization"`
	MaxBacktrackAttempts     int                         `json:"maxBacktrackAttempts"`
	MaxRepairIterations      int                         `json:"maxRepairIterations" validate:"omitempty,min=0,max=10000"`
	RandomSeed               int64                       `json:"randomSeed"`
	Deadline                 *time.Time                  `json:"deadline"`
	Weights                  SoftWeights                 `json:"weights"`
	PriorityWeights          map[models.CourseType]int   `json:"priorityWeights"`
	Preferences              map[string][]models.SlotKey `json:"preferences"`
}

// GenerateTimetableRequest asks the solver for a cold-start proposal.
type GenerateTimetableRequest struct {
	TermID    string                  `json:"termId" validate:"required"`
	ProgramID string                  `json:"programId" validate:"required"`
	Problem   models.TimetableProblem `json:"problem" validate:"required"`
	Options   GenerationOptions       `json:"options"`
}

// GenerateTimetableResponse returns the stored proposal.
type GenerateTimetableResponse struct {
	ProposalID        string                 `json:"proposalId"`
	Revision          string                 `json:"revision"`
	Score             float64                `json:"score"`
	Quality           scheduler.Quality      `json:"quality"`
	Assignments       []models.Assignment    `json:"assignments"`
	Conflicts         []models.Conflict      `json:"conflicts"`
	PlacementFailures []scheduler.CourseHour `json:"placementFailures"`
	Incomplete        bool                   `json:"incomplete"`
	Stats             scheduler.Stats        `json:"stats"`
	Summary           scheduler.Summary      `json:"summary"`
	ExpiresAt         time.Time              `json:"expiresAt"`
}

// DetectConflictsRequest checks an assignment set against a catalog.
type DetectConflictsRequest struct {
	Problem     models.TimetableProblem `json:"problem" validate:"required"`
	Assignments []models.Assignment     `json:"assignments" validate:"dive"`
}

// DetectConflictsResponse lists conflicts in detection order.
type DetectConflictsResponse struct {
	Revision  string            `json:"revision"`
	Conflicts []models.Conflict `json:"conflicts"`
	Summary   scheduler.Summary `json:"summary"`
}

// RepairTimetableRequest relocates conflicting assignments of an existing set.
type RepairTimetableRequest struct {
	Problem     models.TimetableProblem `json:"problem" validate:"required"`
	Assignments []models.Assignment     `json:"assignments" validate:"required,dive"`
	Options     GenerationOptions       `json:"options"`
}

// RepairTimetableResponse reports the repaired set and every relocation.
type RepairTimetableResponse struct {
	Revision    string                 `json:"revision"`
	Assignments []models.Assignment    `json:"assignments"`
	Conflicts   []models.Conflict      `json:"conflicts"`
	Moves       []scheduler.RepairMove `json:"moves"`
	Unresolved  []string               `json:"unresolved"`
	Iterations  int                    `json:"iterations"`
	Before      int                    `json:"conflictsBefore"`
	After       int                    `json:"conflictsAfter"`
	Incomplete  bool                   `json:"incomplete"`
}

// SaveTimetableRequest persists a proposal as a new version.
type SaveTimetableRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Publish    bool   `json:"publish"`
}

// SaveTimetableResponse identifies the stored version.
type SaveTimetableResponse struct {
	VersionID string                 `json:"versionId"`
	Version   int                    `json:"version"`
	Status    models.TimetableStatus `json:"status"`
}

// TimetableQuery filters stored versions.
type TimetableQuery struct {
	TermID    string `form:"termId" validate:"required"`
	ProgramID string `form:"programId" validate:"required"`
}

// TimetableSlotsResponse returns persisted assignments with their conflicts.
type TimetableSlotsResponse struct {
	Version     models.TimetableVersion `json:"version"`
	Assignments []models.Assignment     `json:"assignments"`
	Conflicts   []models.Conflict       `json:"conflicts"`
	Revision    string                  `json:"revision"`
}

// OpenSessionRequest starts an editor session from exactly one source:
// a generated proposal, a stored version, or an inline problem with assignments.
type OpenSessionRequest struct {
	ProposalID  string                   `json:"proposalId"`
	VersionID   string                   `json:"versionId"`
	TermID      string                   `json:"termId"`
	ProgramID   string                   `json:"programId"`
	Problem     *models.TimetableProblem `json:"problem"`
	Assignments []models.Assignment      `json:"assignments" validate:"dive"`
	Options     GenerationOptions        `json:"options"`
}

// MoveAssignmentRequest relocates one assignment to another slot.
type MoveAssignmentRequest struct {
	AssignmentID string         `json:"assignmentId" validate:"required"`
	Slot         models.SlotKey `json:"slot" validate:"required"`
}

// SwapAssignmentsRequest exchanges the room and slot of two assignments.
type SwapAssignmentsRequest struct {
	First  string `json:"first" validate:"required"`
	Second string `json:"second" validate:"required"`
}

// InsertAssignmentRequest adds an assignment. An empty ID is generated.
type InsertAssignmentRequest struct {
	Assignment models.Assignment `json:"assignment"`
}

// UpdateAssignmentRequest replaces an assignment with the same ID.
type UpdateAssignmentRequest struct {
	Assignment models.Assignment `json:"assignment"`
}

// RemoveAssignmentRequest deletes one assignment.
type RemoveAssignmentRequest struct {
	AssignmentID string `json:"assignmentId" validate:"required"`
}

// RepairSessionRequest runs repair over the session's current set.
type RepairSessionRequest struct {
	Options *GenerationOptions `json:"options"`
}

// CommitSessionRequest saves the session as a new timetable version.
type CommitSessionRequest struct {
	Publish bool `json:"publish"`
}

// EditorSessionResponse describes the session after an operation.
type EditorSessionResponse struct {
	SessionID    string                  `json:"sessionId"`
	Revision     string                  `json:"revision"`
	HistoryDepth int                     `json:"historyDepth"`
	Assignments  []models.Assignment     `json:"assignments"`
	Conflicts    []models.Conflict       `json:"conflicts"`
	Diff         *scheduler.ConflictDiff `json:"diff,omitempty"`
	Inserted     *models.Assignment      `json:"inserted,omitempty"`
	Repair       *RepairSummary          `json:"repair,omitempty"`
	Summary      scheduler.Summary       `json:"summary"`
	ExpiresAt    time.Time               `json:"expiresAt"`
}

// RepairSummary condenses a repair run for editor responses.
type RepairSummary struct {
	Moves      []scheduler.RepairMove `json:"moves"`
	Unresolved []string               `json:"unresolved"`
	Iterations int                    `json:"iterations"`
	Before     int                    `json:"conflictsBefore"`
	After      int                    `json:"conflictsAfter"`
	Incomplete bool                   `json:"incomplete"`
}

// CreateExportRequest enqueues a rendering of a stored version.
type CreateExportRequest struct {
	Format    string            `json:"format" validate:"required,oneof=csv pdf xlsx excel"`
	View      models.ExportView `json:"view" validate:"omitempty,oneof=list grid"`
	FacultyID string            `json:"facultyId"`
	RoomID    string            `json:"roomId"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID          string              `json:"id"`
	Status      models.ExportStatus `json:"status"`
	Progress    int                 `json:"progress"`
	DownloadURL *string             `json:"downloadUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
