package models

import (
	"fmt"
	"strings"
)

// Weekday numbering used by the timetable grid (1 = Monday).
const (
	Monday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

// DayName renders a grid day for humans and exports.
func DayName(day int) string {
	if day < Monday || day > Sunday {
		return fmt.Sprintf("DAY%d", day)
	}
	return dayNames[day]
}

// ParseDay accepts either a weekday name or its ordinal.
func ParseDay(raw string) (int, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	for i := Monday; i <= Sunday; i++ {
		if dayNames[i] == value || dayNames[i][:3] == value {
			return i, nil
		}
	}
	var day int
	if _, err := fmt.Sscanf(value, "%d", &day); err == nil && day >= Monday && day <= Sunday {
		return day, nil
	}
	return 0, fmt.Errorf("unknown day %q", raw)
}

// CourseType classifies a course for placement priority.
type CourseType string

const (
	CourseTypeCore      CourseType = "core"
	CourseTypePractical CourseType = "practical"
	CourseTypeLab       CourseType = "lab"
	CourseTypeElective  CourseType = "elective"
)

// Valid reports whether the course type is one of the known kinds.
func (t CourseType) Valid() bool {
	switch t {
	case CourseTypeCore, CourseTypePractical, CourseTypeLab, CourseTypeElective:
		return true
	}
	return false
}

// SlotKey identifies a grid cell. Two time slots are the same slot iff their keys are equal.
type SlotKey struct {
	Day    int `json:"day" yaml:"day" validate:"min=1,max=7"`
	Period int `json:"period" yaml:"period" validate:"min=1"`
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%d", DayName(k.Day), k.Period)
}

// Less orders slots by day then period.
func (k SlotKey) Less(other SlotKey) bool {
	if k.Day != other.Day {
		return k.Day < other.Day
	}
	return k.Period < other.Period
}

// TimeSlot is one cell of the weekly grid. Start and End are informational ("08:00").
type TimeSlot struct {
	Day    int    `json:"day" yaml:"day" validate:"min=1,max=7"`
	Period int    `json:"period" yaml:"period" validate:"min=1"`
	Start  string `json:"start,omitempty" yaml:"start"`
	End    string `json:"end,omitempty" yaml:"end"`
}

// Key returns the identity of the slot.
func (s TimeSlot) Key() SlotKey {
	return SlotKey{Day: s.Day, Period: s.Period}
}

// Room is a teaching space.
type Room struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Name     string   `json:"name,omitempty" yaml:"name"`
	Capacity int      `json:"capacity" yaml:"capacity" validate:"min=1"`
	Features []string `json:"features,omitempty" yaml:"features"`
}

// HasFeatures reports whether every required feature is present.
func (r Room) HasFeatures(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range r.Features {
			if strings.EqualFold(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Faculty is a teacher. Every grid cell not listed in Unavailable is available.
type Faculty struct {
	ID             string    `json:"id" yaml:"id" validate:"required"`
	Name           string    `json:"name,omitempty" yaml:"name"`
	Subjects       []string  `json:"subjects" yaml:"subjects" validate:"required,min=1"`
	MaxWeeklyHours int       `json:"max_weekly_hours,omitempty" yaml:"max_weekly_hours" validate:"min=0"`
	CommittedHours int       `json:"committed_hours,omitempty" yaml:"committed_hours" validate:"min=0"`
	Unavailable    []SlotKey `json:"unavailable,omitempty" yaml:"unavailable" validate:"dive"`
}

// Teaches reports qualification for a subject.
func (f Faculty) Teaches(subject string) bool {
	for _, s := range f.Subjects {
		if strings.EqualFold(s, subject) {
			return true
		}
	}
	return false
}

// Course is a unit of teaching demand.
type Course struct {
	ID               string     `json:"id" yaml:"id" validate:"required"`
	Name             string     `json:"name,omitempty" yaml:"name"`
	Subject          string     `json:"subject" yaml:"subject" validate:"required"`
	WeeklyHours      int        `json:"weekly_hours" yaml:"weekly_hours" validate:"min=1"`
	ExpectedStudents int        `json:"expected_students" yaml:"expected_students" validate:"min=0"`
	Type             CourseType `json:"type" yaml:"type" validate:"required,oneof=core practical lab elective"`
	EligibleFaculty  []string   `json:"eligible_faculty,omitempty" yaml:"eligible_faculty"`
	RequiredFeatures []string   `json:"required_features,omitempty" yaml:"required_features"`
}

// Assignment places one course-hour with a faculty member in a room at a slot.
type Assignment struct {
	ID        string  `json:"id" yaml:"id"`
	CourseID  string  `json:"course_id" yaml:"course_id" validate:"required"`
	FacultyID string  `json:"faculty_id" yaml:"faculty_id" validate:"required"`
	RoomID    string  `json:"room_id" yaml:"room_id" validate:"required"`
	Slot      SlotKey `json:"slot" yaml:"slot"`
	Notes     string  `json:"notes,omitempty" yaml:"notes"`
}

// ConflictKind enumerates detected violations.
type ConflictKind string

const (
	ConflictFacultyDoubleBooking ConflictKind = "FACULTY_DOUBLE_BOOKING"
	ConflictRoomDoubleBooking    ConflictKind = "ROOM_DOUBLE_BOOKING"
	ConflictCapacityOverflow     ConflictKind = "CAPACITY_OVERFLOW"
	ConflictFacultyUnavailable   ConflictKind = "FACULTY_UNAVAILABLE"
	ConflictPlacementFailure     ConflictKind = "PLACEMENT_FAILURE"
)

// Conflict is a single violation. PLACEMENT_FAILURE entries carry CourseID and Hour instead of assignment ids.
type Conflict struct {
	Kind          ConflictKind `json:"kind"`
	Message       string       `json:"message"`
	AssignmentIDs []string     `json:"assignment_ids,omitempty"`
	ResourceID    string       `json:"resource_id,omitempty"`
	Slot          *SlotKey     `json:"slot,omitempty"`
	CourseID      string       `json:"course_id,omitempty"`
	Hour          int          `json:"hour,omitempty"`
}

// TimetableProblem bundles the reference data of one scheduling run.
type TimetableProblem struct {
	Courses []Course   `json:"courses" yaml:"courses" validate:"required,min=1,dive"`
	Faculty []Faculty  `json:"faculty" yaml:"faculty" validate:"required,min=1,dive"`
	Rooms   []Room     `json:"rooms" yaml:"rooms" validate:"required,min=1,dive"`
	Slots   []TimeSlot `json:"slots" yaml:"slots" validate:"required,min=1,dive"`
}
