package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestGenerateSatisfiableInputHasNoConflicts(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{{ID: "math", Subject: "Math", WeeklyHours: 3, ExpectedStudents: 30, Type: models.CourseTypeCore}},
		[]models.Faculty{{ID: "f1", Subjects: []string{"Math"}}},
		[]models.Room{{ID: "r1", Capacity: 40}},
		weekSlots(5, 1),
	)
	require.NoError(t, err)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Assignments.Len())
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.PlacementFailures)
	assert.False(t, result.Incomplete)

	days := make(map[int]bool)
	for _, a := range result.Assignments.All() {
		days[a.Slot.Day] = true
	}
	assert.Len(t, days, 3, "day spread should put each hour on its own day")
}

func TestGenerateScenarioTwoSlots(t *testing.T) {
	catalog := scenarioCatalog(t, mon9, mon10)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, 2, result.Assignments.Len())
	assert.Empty(t, result.Conflicts)
	math, ok := result.Assignments.Get("math#1")
	require.True(t, ok)
	english, ok := result.Assignments.Get("english#1")
	require.True(t, ok)
	assert.NotEqual(t, math.Slot, english.Slot)
	assert.Equal(t, "F2", english.FacultyID)
}

func TestGenerateScenarioOneSlotReportsOneFailure(t *testing.T) {
	catalog := scenarioCatalog(t, mon9)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Assignments.Len())
	require.Len(t, result.PlacementFailures, 1)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictPlacementFailure, result.Conflicts[0].Kind)
	assert.Equal(t, result.PlacementFailures[0].CourseID, result.Conflicts[0].CourseID)
	assert.Equal(t, 2, result.Assignments.Len()+len(result.PlacementFailures), "no course-hour is dropped silently")
	assert.Greater(t, result.Stats.Backtracks, 0)
}

func TestGenerateOverConstrainedFacultyYieldsPlacementFailure(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{
			{ID: "algebra", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 20, Type: models.CourseTypeCore},
			{ID: "geometry", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 20, Type: models.CourseTypeCore},
		},
		[]models.Faculty{{ID: "solo", Subjects: []string{"Math"}, Unavailable: []models.SlotKey{mon10, tue9}}},
		[]models.Room{{ID: "r1", Capacity: 30}, {ID: "r2", Capacity: 30}},
		gridSlots(mon9, mon10, tue9),
	)
	require.NoError(t, err)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.PlacementFailures, 1)
	assert.Equal(t, 1, result.Assignments.Len())
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	catalog := largeCatalog(t)
	opts := DefaultOptions()
	opts.RandomSeed = 42

	first, err := Generate(context.Background(), catalog, opts)
	require.NoError(t, err)
	second, err := Generate(context.Background(), catalog, opts)
	require.NoError(t, err)

	assert.True(t, first.Assignments.Equal(second.Assignments))
	assert.Equal(t, first.Conflicts, second.Conflicts)
}

func TestGeneratePrioritizesCoreCourses(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{
			{ID: "art", Subject: "Art", WeeklyHours: 1, ExpectedStudents: 90, Type: models.CourseTypeElective},
			{ID: "math", Subject: "Art", WeeklyHours: 1, ExpectedStudents: 10, Type: models.CourseTypeCore},
		},
		[]models.Faculty{{ID: "f1", Subjects: []string{"Art"}}},
		[]models.Room{{ID: "r1", Capacity: 100}},
		gridSlots(mon9),
	)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.MaxBacktrackAttempts = -1
	result, err := Generate(context.Background(), catalog, opts)
	require.NoError(t, err)
	_, placed := result.Assignments.Get("math#1")
	assert.True(t, placed)
	require.Len(t, result.PlacementFailures, 1)
	assert.Equal(t, "art", result.PlacementFailures[0].CourseID)

	opts.PrioritizeCore = false
	result, err = Generate(context.Background(), catalog, opts)
	require.NoError(t, err)
	_, placed = result.Assignments.Get("art#1")
	assert.True(t, placed, "without priority the larger enrollment goes first")
}

func TestGenerateRespectsCapsFeaturesAndAvailability(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{
			{ID: "chem", Subject: "Chemistry", WeeklyHours: 2, ExpectedStudents: 20, Type: models.CourseTypeLab, RequiredFeatures: []string{"fume-hood"}},
			{ID: "bio", Subject: "Chemistry", WeeklyHours: 2, ExpectedStudents: 20, Type: models.CourseTypeLab},
		},
		[]models.Faculty{
			{ID: "capped", Subjects: []string{"Chemistry"}, MaxWeeklyHours: 3, CommittedHours: 2},
			{ID: "free", Subjects: []string{"Chemistry"}, Unavailable: []models.SlotKey{mon9}},
		},
		[]models.Room{{ID: "lab", Capacity: 25, Features: []string{"Fume-Hood"}}, {ID: "hall", Capacity: 200}},
		weekSlots(2, 2),
	)
	require.NoError(t, err)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)

	cappedLoad := 0
	for _, a := range result.Assignments.All() {
		if a.CourseID == "chem" {
			assert.Equal(t, "lab", a.RoomID)
		}
		if a.FacultyID == "capped" {
			cappedLoad++
		}
		if a.FacultyID == "free" {
			assert.NotEqual(t, mon9, a.Slot)
		}
	}
	assert.LessOrEqual(t, cappedLoad, 1)
}

func TestGenerateCancelledReturnsPartialResult(t *testing.T) {
	catalog := largeCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Generate(ctx, catalog, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Equal(t, 0, result.Assignments.Len())
	assert.Equal(t, result.Stats.CourseHours, len(result.PlacementFailures))

	opts := DefaultOptions()
	opts.Deadline = time.Now().Add(-time.Second)
	result, err = Generate(context.Background(), catalog, opts)
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
}

func TestGenerateRejectsNegativeWeights(t *testing.T) {
	opts := DefaultOptions()
	opts.Weights.Workload = -1
	_, err := Generate(context.Background(), scenarioCatalog(t, mon9), opts)
	assert.Error(t, err)
}

func TestGenerateBalancesWorkload(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{{ID: "math", Subject: "Math", WeeklyHours: 4, ExpectedStudents: 10, Type: models.CourseTypeCore}},
		[]models.Faculty{{ID: "a", Subjects: []string{"Math"}}, {ID: "b", Subjects: []string{"Math"}}},
		[]models.Room{{ID: "r", Capacity: 10}},
		weekSlots(4, 1),
	)
	require.NoError(t, err)

	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)
	loads := map[string]int{}
	for _, a := range result.Assignments.All() {
		loads[a.FacultyID]++
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, loads)
}

func largeCatalog(t *testing.T) *Catalog {
	t.Helper()
	subjects := []string{"Math", "Physics", "Biology", "History"}
	types := []models.CourseType{models.CourseTypeCore, models.CourseTypePractical, models.CourseTypeLab, models.CourseTypeElective}
	courses := make([]models.Course, 0)
	for i := 0; i < 12; i++ {
		courses = append(courses, models.Course{
			ID:               fmt.Sprintf("c%02d", i),
			Subject:          subjects[i%len(subjects)],
			WeeklyHours:      2 + i%3,
			ExpectedStudents: 20 + (i*7)%40,
			Type:             types[i%len(types)],
		})
	}
	faculty := make([]models.Faculty, 0)
	for i := 0; i < 6; i++ {
		faculty = append(faculty, models.Faculty{
			ID:             fmt.Sprintf("f%d", i),
			Subjects:       []string{subjects[i%len(subjects)], subjects[(i+1)%len(subjects)]},
			MaxWeeklyHours: 12,
			Unavailable:    []models.SlotKey{{Day: 1 + i%5, Period: 1}},
		})
	}
	catalog, err := NewCatalog(courses, faculty,
		[]models.Room{{ID: "r1", Capacity: 30}, {ID: "r2", Capacity: 45}, {ID: "r3", Capacity: 60}},
		weekSlots(5, 6),
	)
	require.NoError(t, err)
	return catalog
}
