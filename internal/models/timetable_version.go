package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus represents lifecycle phases for saved timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
	TimetableStatusArchived  TimetableStatus = "ARCHIVED"
)

// TimetableVersion captures a versioned timetable for a term/program pair.
// Meta holds the entity catalog, options and quality score the version was built with.
type TimetableVersion struct {
	ID        string          `db:"id" json:"id"`
	TermID    string          `db:"term_id" json:"term_id"`
	ProgramID string          `db:"program_id" json:"program_id"`
	Version   int             `db:"version" json:"version"`
	Status    TimetableStatus `db:"status" json:"status"`
	Meta      types.JSONText  `db:"meta" json:"meta"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one persisted assignment of a timetable version.
type TimetableSlot struct {
	ID           string    `db:"id" json:"id"`
	VersionID    string    `db:"timetable_version_id" json:"timetable_version_id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	FacultyID    string    `db:"faculty_id" json:"faculty_id"`
	RoomID       string    `db:"room_id" json:"room_id"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	Period       int       `db:"period" json:"period"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Assignment converts the row back into an engine assignment.
func (s TimetableSlot) Assignment() Assignment {
	a := Assignment{
		ID:        s.AssignmentID,
		CourseID:  s.CourseID,
		FacultyID: s.FacultyID,
		RoomID:    s.RoomID,
		Slot:      SlotKey{Day: s.DayOfWeek, Period: s.Period},
	}
	if s.Notes != nil {
		a.Notes = *s.Notes
	}
	return a
}

// TimetableSummary aggregates versions available for a term/program pair.
type TimetableSummary struct {
	TermID    string                 `json:"term_id"`
	ProgramID string                 `json:"program_id"`
	ActiveID  *string                `json:"active_id,omitempty"`
	Versions  []TimetableVersionMeta `json:"versions"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// TimetableVersionMeta represents lightweight metadata for list views.
type TimetableVersionMeta struct {
	ID        string          `json:"id"`
	Version   int             `json:"version"`
	Status    TimetableStatus `json:"status"`
	Score     float64         `json:"score"`
	Conflicts int             `json:"conflicts"`
	CreatedAt time.Time       `json:"created_at"`
}
