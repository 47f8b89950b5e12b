package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type bookingGroup struct {
	key     resourceSlot
	members []string
}

// DetectConflicts computes every hard-constraint violation in the set. It never mutates
// its inputs and is safe to call concurrently on the same set. Conflicts come grouped by
// kind (faculty, room, capacity, availability); within a kind they are ordered by slot
// and resource, and member ids keep set order. An assignment violating several rules is
// reported once per rule.
func DetectConflicts(catalog *Catalog, set *AssignmentSet) ([]models.Conflict, error) {
	assignments := set.All()
	for _, a := range assignments {
		if _, _, _, err := catalog.resolve(a); err != nil {
			return nil, err
		}
	}

	conflicts := make([]models.Conflict, 0)

	for _, g := range groupBookings(assignments, func(a models.Assignment) string { return a.FacultyID }) {
		slot := g.key.slot
		conflicts = append(conflicts, models.Conflict{
			Kind:          models.ConflictFacultyDoubleBooking,
			Message:       fmt.Sprintf("faculty %s is booked %d times at %s", g.key.id, len(g.members), slot),
			AssignmentIDs: g.members,
			ResourceID:    g.key.id,
			Slot:          &slot,
		})
	}

	for _, g := range groupBookings(assignments, func(a models.Assignment) string { return a.RoomID }) {
		slot := g.key.slot
		conflicts = append(conflicts, models.Conflict{
			Kind:          models.ConflictRoomDoubleBooking,
			Message:       fmt.Sprintf("room %s is booked %d times at %s", g.key.id, len(g.members), slot),
			AssignmentIDs: g.members,
			ResourceID:    g.key.id,
			Slot:          &slot,
		})
	}

	for _, a := range sortedBySlot(assignments) {
		course, _ := catalog.Course(a.CourseID)
		room, _ := catalog.Room(a.RoomID)
		if course.ExpectedStudents <= room.Capacity {
			continue
		}
		slot := a.Slot
		conflicts = append(conflicts, models.Conflict{
			Kind: models.ConflictCapacityOverflow,
			Message: fmt.Sprintf("course %s expects %d students but room %s holds %d",
				course.ID, course.ExpectedStudents, room.ID, room.Capacity),
			AssignmentIDs: []string{a.ID},
			ResourceID:    room.ID,
			Slot:          &slot,
		})
	}

	for _, a := range sortedBySlot(assignments) {
		if catalog.Available(a.FacultyID, a.Slot) {
			continue
		}
		slot := a.Slot
		conflicts = append(conflicts, models.Conflict{
			Kind:          models.ConflictFacultyUnavailable,
			Message:       fmt.Sprintf("faculty %s is unavailable at %s", a.FacultyID, slot),
			AssignmentIDs: []string{a.ID},
			ResourceID:    a.FacultyID,
			Slot:          &slot,
		})
	}

	return conflicts, nil
}

func groupBookings(assignments []models.Assignment, resource func(models.Assignment) string) []bookingGroup {
	index := make(map[resourceSlot]int)
	groups := make([]bookingGroup, 0)
	for _, a := range assignments {
		key := resourceSlot{id: resource(a), slot: a.Slot}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, bookingGroup{key: key})
		}
		groups[i].members = append(groups[i].members, a.ID)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.members) > 1 {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key.slot != out[j].key.slot {
			return out[i].key.slot.Less(out[j].key.slot)
		}
		return out[i].key.id < out[j].key.id
	})
	return out
}

func sortedBySlot(assignments []models.Assignment) []models.Assignment {
	out := make([]models.Assignment, len(assignments))
	copy(out, assignments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot.Less(out[j].Slot)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ConflictingIDs lists assignment ids involved in any conflict, in first-seen order.
func ConflictingIDs(conflicts []models.Conflict) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, c := range conflicts {
		for _, id := range c.AssignmentIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// ConflictDiff describes how a mutation changed the conflict report.
type ConflictDiff struct {
	Introduced []models.Conflict `json:"introduced"`
	Resolved   []models.Conflict `json:"resolved"`
}

// DiffConflicts compares two reports by kind and affected ids.
func DiffConflicts(before, after []models.Conflict) ConflictDiff {
	diff := ConflictDiff{Introduced: []models.Conflict{}, Resolved: []models.Conflict{}}
	beforeKeys := make(map[string]struct{}, len(before))
	for _, c := range before {
		beforeKeys[conflictKey(c)] = struct{}{}
	}
	afterKeys := make(map[string]struct{}, len(after))
	for _, c := range after {
		key := conflictKey(c)
		afterKeys[key] = struct{}{}
		if _, ok := beforeKeys[key]; !ok {
			diff.Introduced = append(diff.Introduced, c)
		}
	}
	for _, c := range before {
		if _, ok := afterKeys[conflictKey(c)]; !ok {
			diff.Resolved = append(diff.Resolved, c)
		}
	}
	return diff
}

func conflictKey(c models.Conflict) string {
	ids := append([]string(nil), c.AssignmentIDs...)
	sort.Strings(ids)
	parts := []string{string(c.Kind), c.ResourceID, strings.Join(ids, ",")}
	if c.Slot != nil {
		parts = append(parts, c.Slot.String())
	}
	if c.CourseID != "" {
		parts = append(parts, c.CourseID, strconv.Itoa(c.Hour))
	}
	return strings.Join(parts, "|")
}
