package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type resourceSlot struct {
	id   string
	slot models.SlotKey
}

// Catalog indexes the reference data of one scheduling run. It is read-only after
// construction and safe for concurrent readers.
type Catalog struct {
	courses map[string]models.Course
	faculty map[string]models.Faculty
	rooms   map[string]models.Room

	courseIDs  []string
	facultyIDs []string
	roomIDs    []string

	slots     []models.TimeSlot
	slotIndex map[models.SlotKey]int

	unavailable map[resourceSlot]struct{}
}

// NewCatalog validates and indexes entities. Iteration order is by id and slot, never input order.
func NewCatalog(courses []models.Course, faculty []models.Faculty, rooms []models.Room, slots []models.TimeSlot) (*Catalog, error) {
	c := &Catalog{
		courses:     make(map[string]models.Course, len(courses)),
		faculty:     make(map[string]models.Faculty, len(faculty)),
		rooms:       make(map[string]models.Room, len(rooms)),
		slotIndex:   make(map[models.SlotKey]int, len(slots)),
		unavailable: make(map[resourceSlot]struct{}),
	}

	for _, s := range slots {
		key := s.Key()
		if key.Day < models.Monday || key.Day > models.Sunday || key.Period < 1 {
			return nil, invalid("slot %s is outside the weekly grid", key)
		}
		if _, dup := c.slotIndex[key]; dup {
			return nil, invalid("duplicate slot %s", key)
		}
		c.slotIndex[key] = -1
		c.slots = append(c.slots, s)
	}
	sort.Slice(c.slots, func(i, j int) bool { return c.slots[i].Key().Less(c.slots[j].Key()) })
	for i, s := range c.slots {
		c.slotIndex[s.Key()] = i
	}

	for _, r := range rooms {
		if r.ID == "" {
			return nil, invalid("room id is required")
		}
		if _, dup := c.rooms[r.ID]; dup {
			return nil, invalid("duplicate room %s", r.ID)
		}
		if r.Capacity <= 0 {
			return nil, invalid("room %s capacity must be positive", r.ID)
		}
		c.rooms[r.ID] = r
		c.roomIDs = append(c.roomIDs, r.ID)
	}

	for _, f := range faculty {
		if f.ID == "" {
			return nil, invalid("faculty id is required")
		}
		if _, dup := c.faculty[f.ID]; dup {
			return nil, invalid("duplicate faculty %s", f.ID)
		}
		if f.MaxWeeklyHours < 0 || f.CommittedHours < 0 {
			return nil, invalid("faculty %s hours must not be negative", f.ID)
		}
		c.faculty[f.ID] = f
		c.facultyIDs = append(c.facultyIDs, f.ID)
		for _, key := range f.Unavailable {
			c.unavailable[resourceSlot{id: f.ID, slot: key}] = struct{}{}
		}
	}

	for _, course := range courses {
		if course.ID == "" {
			return nil, invalid("course id is required")
		}
		if _, dup := c.courses[course.ID]; dup {
			return nil, invalid("duplicate course %s", course.ID)
		}
		if course.WeeklyHours <= 0 {
			return nil, invalid("course %s weekly hours must be positive", course.ID)
		}
		if course.ExpectedStudents < 0 {
			return nil, invalid("course %s expected students must not be negative", course.ID)
		}
		if !course.Type.Valid() {
			return nil, invalid("course %s has unknown type %q", course.ID, course.Type)
		}
		for _, fid := range course.EligibleFaculty {
			if _, ok := c.faculty[fid]; !ok {
				return nil, reference("course %s lists unknown faculty %s", course.ID, fid)
			}
		}
		c.courses[course.ID] = course
		c.courseIDs = append(c.courseIDs, course.ID)
	}

	sort.Strings(c.courseIDs)
	sort.Strings(c.facultyIDs)
	sort.Strings(c.roomIDs)
	return c, nil
}

// NewCatalogFromProblem is a convenience over NewCatalog.
func NewCatalogFromProblem(p models.TimetableProblem) (*Catalog, error) {
	return NewCatalog(p.Courses, p.Faculty, p.Rooms, p.Slots)
}

// Problem returns the catalog contents in id order.
func (c *Catalog) Problem() models.TimetableProblem {
	p := models.TimetableProblem{
		Courses: c.Courses(),
		Faculty: c.FacultyMembers(),
		Rooms:   c.Rooms(),
		Slots:   c.Slots(),
	}
	return p
}

func (c *Catalog) Course(id string) (models.Course, bool) {
	course, ok := c.courses[id]
	return course, ok
}

func (c *Catalog) Faculty(id string) (models.Faculty, bool) {
	f, ok := c.faculty[id]
	return f, ok
}

func (c *Catalog) Room(id string) (models.Room, bool) {
	r, ok := c.rooms[id]
	return r, ok
}

// HasSlot reports whether the key is part of the grid.
func (c *Catalog) HasSlot(key models.SlotKey) bool {
	_, ok := c.slotIndex[key]
	return ok
}

// Slots returns the grid ordered by day then period.
func (c *Catalog) Slots() []models.TimeSlot {
	out := make([]models.TimeSlot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Courses returns courses ordered by id.
func (c *Catalog) Courses() []models.Course {
	out := make([]models.Course, 0, len(c.courseIDs))
	for _, id := range c.courseIDs {
		out = append(out, c.courses[id])
	}
	return out
}

// FacultyMembers returns faculty ordered by id.
func (c *Catalog) FacultyMembers() []models.Faculty {
	out := make([]models.Faculty, 0, len(c.facultyIDs))
	for _, id := range c.facultyIDs {
		out = append(out, c.faculty[id])
	}
	return out
}

// Rooms returns rooms ordered by id.
func (c *Catalog) Rooms() []models.Room {
	out := make([]models.Room, 0, len(c.roomIDs))
	for _, id := range c.roomIDs {
		out = append(out, c.rooms[id])
	}
	return out
}

// Available reports whether the faculty member may teach at the slot.
func (c *Catalog) Available(facultyID string, slot models.SlotKey) bool {
	_, blocked := c.unavailable[resourceSlot{id: facultyID, slot: slot}]
	return !blocked
}

// Qualified reports whether the faculty member may teach the course.
func (c *Catalog) Qualified(course models.Course, f models.Faculty) bool {
	if !f.Teaches(course.Subject) {
		return false
	}
	if len(course.EligibleFaculty) == 0 {
		return true
	}
	for _, id := range course.EligibleFaculty {
		if id == f.ID {
			return true
		}
	}
	return false
}

// EligibleFaculty returns the qualified faculty for a course ordered by id.
func (c *Catalog) EligibleFaculty(course models.Course) []models.Faculty {
	out := make([]models.Faculty, 0)
	for _, id := range c.facultyIDs {
		if f := c.faculty[id]; c.Qualified(course, f) {
			out = append(out, f)
		}
	}
	return out
}

// ValidateAssignment checks references then qualification.
func (c *Catalog) ValidateAssignment(a models.Assignment) error {
	course, f, _, err := c.resolve(a)
	if err != nil {
		return err
	}
	if !c.Qualified(course, f) {
		return appErrors.Clone(appErrors.ErrQualification,
			fmt.Sprintf("faculty %s is not qualified to teach %s (%s)", f.ID, course.ID, course.Subject))
	}
	return nil
}

// ValidateSet runs ValidateAssignment over every member.
func (c *Catalog) ValidateSet(set *AssignmentSet) error {
	for _, a := range set.All() {
		if err := c.ValidateAssignment(a); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) resolve(a models.Assignment) (models.Course, models.Faculty, models.Room, error) {
	course, ok := c.courses[a.CourseID]
	if !ok {
		return models.Course{}, models.Faculty{}, models.Room{}, reference("assignment %s references unknown course %q", a.ID, a.CourseID)
	}
	f, ok := c.faculty[a.FacultyID]
	if !ok {
		return models.Course{}, models.Faculty{}, models.Room{}, reference("assignment %s references unknown faculty %q", a.ID, a.FacultyID)
	}
	r, ok := c.rooms[a.RoomID]
	if !ok {
		return models.Course{}, models.Faculty{}, models.Room{}, reference("assignment %s references unknown room %q", a.ID, a.RoomID)
	}
	if !c.HasSlot(a.Slot) {
		return models.Course{}, models.Faculty{}, models.Room{}, reference("assignment %s references unknown slot %s", a.ID, a.Slot)
	}
	return course, f, r, nil
}

func invalid(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}

func reference(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrReference, fmt.Sprintf(format, args...))
}
