package scheduler

import "github.com/noah-isme/timetable-engine/internal/models"

type courseDay struct {
	courseID string
	day      int
}

// occupancy counts bookings per resource and slot for a partial or full set.
// Counts rather than flags so sets that already contain conflicts can be tracked.
type occupancy struct {
	faculty    map[resourceSlot]int
	rooms      map[resourceSlot]int
	courses    map[resourceSlot]int
	load       map[string]int
	courseDays map[courseDay]int
}

func newOccupancy() *occupancy {
	return &occupancy{
		faculty:    make(map[resourceSlot]int),
		rooms:      make(map[resourceSlot]int),
		courses:    make(map[resourceSlot]int),
		load:       make(map[string]int),
		courseDays: make(map[courseDay]int),
	}
}

func occupancyOf(assignments []models.Assignment, skipID string) *occupancy {
	occ := newOccupancy()
	for _, a := range assignments {
		if a.ID == skipID {
			continue
		}
		occ.add(a)
	}
	return occ
}

func (o *occupancy) add(a models.Assignment) {
	o.faculty[resourceSlot{id: a.FacultyID, slot: a.Slot}]++
	o.rooms[resourceSlot{id: a.RoomID, slot: a.Slot}]++
	o.courses[resourceSlot{id: a.CourseID, slot: a.Slot}]++
	o.load[a.FacultyID]++
	o.courseDays[courseDay{courseID: a.CourseID, day: a.Slot.Day}]++
}

func (o *occupancy) remove(a models.Assignment) {
	decrement(o.faculty, resourceSlot{id: a.FacultyID, slot: a.Slot})
	decrement(o.rooms, resourceSlot{id: a.RoomID, slot: a.Slot})
	decrement(o.courses, resourceSlot{id: a.CourseID, slot: a.Slot})
	decrement(o.load, a.FacultyID)
	decrement(o.courseDays, courseDay{courseID: a.CourseID, day: a.Slot.Day})
}

func decrement[K comparable](m map[K]int, key K) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}

func (o *occupancy) facultyBusy(id string, slot models.SlotKey) bool {
	return o.faculty[resourceSlot{id: id, slot: slot}] > 0
}

func (o *occupancy) roomBusy(id string, slot models.SlotKey) bool {
	return o.rooms[resourceSlot{id: id, slot: slot}] > 0
}

func (o *occupancy) courseBusy(id string, slot models.SlotKey) bool {
	return o.courses[resourceSlot{id: id, slot: slot}] > 0
}

// hasCapacity applies the weekly load cap. A zero cap means unlimited.
func (o *occupancy) hasCapacity(f models.Faculty) bool {
	if f.MaxWeeklyHours <= 0 {
		return true
	}
	return f.CommittedHours+o.load[f.ID]+1 <= f.MaxWeeklyHours
}
