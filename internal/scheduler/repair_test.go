package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestRepairResolvesDoubleBooking(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "m1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "m2", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
	)

	result, err := Repair(context.Background(), catalog, set, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Before)
	assert.Equal(t, 0, result.After)
	assert.Empty(t, result.Unresolved)
	require.Len(t, result.Moves, 1)
	assert.Equal(t, "m1", result.Moves[0].AssignmentID)
	assert.Equal(t, "ana", result.Moves[0].After.FacultyID, "current faculty is kept when possible")
	assert.NotEqual(t, mon9, result.Moves[0].After.Slot)

	original, _ := set.Get("m1")
	assert.Equal(t, mon9, original.Slot, "input set is not mutated")
}

func TestRepairNeverRegresses(t *testing.T) {
	catalog := largeCatalog(t)
	opts := DefaultOptions()
	opts.RandomSeed = 7

	generated, err := Generate(context.Background(), catalog, opts)
	require.NoError(t, err)

	// Pile everything into one room and slot to create a badly broken timetable.
	broken := make([]models.Assignment, 0)
	for _, a := range generated.Assignments.All() {
		a.RoomID = "r1"
		a.Slot = models.SlotKey{Day: 1, Period: 1}
		broken = append(broken, a)
	}
	set := mustSet(t, broken...)
	before, err := DetectConflicts(catalog, set)
	require.NoError(t, err)

	opts.MaxRepairIterations = 10
	result, err := Repair(context.Background(), catalog, set, opts)
	require.NoError(t, err)

	after, err := DetectConflicts(catalog, result.Assignments)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(after), len(before))
	assert.Equal(t, len(after), result.After)
	assert.LessOrEqual(t, result.Iterations, 10)
	for i := 1; i < len(result.Moves); i++ {
		assert.Less(t, result.Moves[i].Conflicts, result.Moves[i-1].Conflicts)
	}
}

func TestRepairReportsUnresolved(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{{ID: "big", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 90, Type: models.CourseTypeCore}},
		[]models.Faculty{{ID: "f", Subjects: []string{"Math"}}},
		[]models.Room{{ID: "small", Capacity: 30}},
		gridSlots(mon9, mon10),
	)
	require.NoError(t, err)
	set := mustSet(t, models.Assignment{ID: "a", CourseID: "big", FacultyID: "f", RoomID: "small", Slot: mon9})

	result, err := Repair(context.Background(), catalog, set, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Unresolved)
	assert.Equal(t, result.Before, result.After)
	assert.Empty(t, result.Moves)
	assert.True(t, set.Equal(result.Assignments))
}

func TestRepairCancelled(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "m1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "m2", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Repair(ctx, catalog, set, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Equal(t, result.Before, result.After)
}

func TestEvaluateAndSummarize(t *testing.T) {
	catalog := scenarioCatalog(t, mon9, mon10)
	result, err := Generate(context.Background(), catalog, DefaultOptions())
	require.NoError(t, err)

	assert.Greater(t, result.Quality.Score, 90.0)
	assert.Equal(t, 0, result.Quality.Conflicts)

	worse := Evaluate(catalog, result.Assignments, 3, DefaultOptions())
	assert.Less(t, worse.Score, result.Quality.Score)

	summary := Summarize(catalog, result.Assignments, result.Conflicts)
	assert.Equal(t, 2, summary.TotalClasses)
	assert.Equal(t, 2, summary.Faculty)
	assert.Equal(t, 1, summary.Rooms)
	require.Len(t, summary.RoomUsage, 1)
	assert.Equal(t, 2, summary.RoomUsage[0].Booked)
	assert.InDelta(t, 1.0, summary.RoomUsage[0].Utilization, 0.0001)

	assigned := 0
	for _, load := range summary.FacultyLoads {
		assigned += load.Assigned
	}
	assert.Equal(t, 2, assigned)
}

func TestEvaluateCountsPreferenceMisses(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t, models.Assignment{ID: "m1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9})
	opts := DefaultOptions()
	opts.Preferences = map[string][]models.SlotKey{"ana": {mon10}}

	assert.Equal(t, 1, Evaluate(catalog, set, 0, opts).PreferenceMisses)

	opts.RespectFacultyPreference = false
	assert.Equal(t, 0, Evaluate(catalog, set, 0, opts).PreferenceMisses)
}

// countdownContext reports cancellation once Err has been consulted n times.
type countdownContext struct {
	context.Context
	remaining int
}

func (c *countdownContext) Err() error {
	if c.remaining <= 0 {
		return context.Canceled
	}
	c.remaining--
	return nil
}

func TestRepairStopsInsideCandidateSearch(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "m1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "m2", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
	)
	// One check for the iteration and one for the first conflicting id; the
	// candidate loop observes the cancellation.
	ctx := &countdownContext{Context: context.Background(), remaining: 2}

	result, err := Repair(ctx, catalog, set, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
	assert.Empty(t, result.Moves)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, result.Before, result.After)
}
