package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

var (
	mon9  = models.SlotKey{Day: models.Monday, Period: 1}
	mon10 = models.SlotKey{Day: models.Monday, Period: 2}
	tue9  = models.SlotKey{Day: models.Tuesday, Period: 1}
)

func gridSlots(keys ...models.SlotKey) []models.TimeSlot {
	out := make([]models.TimeSlot, len(keys))
	for i, k := range keys {
		out[i] = models.TimeSlot{Day: k.Day, Period: k.Period}
	}
	return out
}

func weekSlots(days, periods int) []models.TimeSlot {
	out := make([]models.TimeSlot, 0, days*periods)
	for d := 1; d <= days; d++ {
		for p := 1; p <= periods; p++ {
			out = append(out, models.TimeSlot{Day: d, Period: p})
		}
	}
	return out
}

// scenarioCatalog is two faculty (F1 math, F2 math+english), one room of 50 and the given slots.
func scenarioCatalog(t *testing.T, slots ...models.SlotKey) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(
		[]models.Course{
			{ID: "math", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 40, Type: models.CourseTypeCore},
			{ID: "english", Subject: "English", WeeklyHours: 1, ExpectedStudents: 30, Type: models.CourseTypeCore},
		},
		[]models.Faculty{
			{ID: "F1", Subjects: []string{"Math"}},
			{ID: "F2", Subjects: []string{"Math", "English"}},
		},
		[]models.Room{{ID: "R1", Capacity: 50}},
		gridSlots(slots...),
	)
	require.NoError(t, err)
	return catalog
}

// editorCatalog has two rooms and three slots so edits have somewhere to go.
func editorCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(
		[]models.Course{
			{ID: "math", Subject: "Math", WeeklyHours: 2, ExpectedStudents: 40, Type: models.CourseTypeCore},
			{ID: "chem", Subject: "Chemistry", WeeklyHours: 1, ExpectedStudents: 60, Type: models.CourseTypeLab, RequiredFeatures: []string{"lab"}},
		},
		[]models.Faculty{
			{ID: "ana", Subjects: []string{"Math"}, Unavailable: []models.SlotKey{tue9}},
			{ID: "budi", Subjects: []string{"Chemistry", "Math"}},
		},
		[]models.Room{
			{ID: "R1", Capacity: 50},
			{ID: "LAB", Capacity: 80, Features: []string{"lab"}},
		},
		gridSlots(mon9, mon10, tue9),
	)
	require.NoError(t, err)
	return catalog
}

func mustSet(t *testing.T, assignments ...models.Assignment) *AssignmentSet {
	t.Helper()
	set, err := NewAssignmentSet(assignments)
	require.NoError(t, err)
	return set
}

func conflictKinds(conflicts []models.Conflict) map[models.ConflictKind]int {
	out := make(map[models.ConflictKind]int)
	for _, c := range conflicts {
		out[c.Kind]++
	}
	return out
}
