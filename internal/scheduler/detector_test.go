package scheduler

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func TestDetectConflictsCleanSet(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "m1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "c1", CourseID: "chem", FacultyID: "budi", RoomID: "LAB", Slot: mon9},
	)

	conflicts, err := DetectConflicts(catalog, set)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectConflictsDoubleBookings(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "m1", CourseID: "math", FacultyID: "budi", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "m2", CourseID: "math", FacultyID: "budi", RoomID: "R1", Slot: mon9},
		models.Assignment{ID: "m3", CourseID: "math", FacultyID: "budi", RoomID: "R1", Slot: mon9},
	)

	conflicts, err := DetectConflicts(catalog, set)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	assert.Equal(t, models.ConflictFacultyDoubleBooking, conflicts[0].Kind)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, conflicts[0].AssignmentIDs)
	assert.Equal(t, "budi", conflicts[0].ResourceID)
	assert.Equal(t, models.ConflictRoomDoubleBooking, conflicts[1].Kind)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, conflicts[1].AssignmentIDs)
}

func TestDetectConflictsReportsEachKindSeparately(t *testing.T) {
	catalog := editorCatalog(t)
	// chem needs 60 seats in a 50 seat room, taught by ana who is away on Tuesday.
	catalog.courses["chem"] = models.Course{ID: "chem", Subject: "Math", WeeklyHours: 1, ExpectedStudents: 60, Type: models.CourseTypeLab}
	set := mustSet(t, models.Assignment{ID: "x", CourseID: "chem", FacultyID: "ana", RoomID: "R1", Slot: tue9})

	conflicts, err := DetectConflicts(catalog, set)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	kinds := conflictKinds(conflicts)
	assert.Equal(t, 1, kinds[models.ConflictCapacityOverflow])
	assert.Equal(t, 1, kinds[models.ConflictFacultyUnavailable])
	for _, c := range conflicts {
		assert.Equal(t, []string{"x"}, c.AssignmentIDs)
	}
}

func TestDetectConflictsGroupsKindsTogether(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "a", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: tue9},
		models.Assignment{ID: "b", CourseID: "math", FacultyID: "budi", RoomID: "R1", Slot: tue9},
		models.Assignment{ID: "c", CourseID: "math", FacultyID: "ana", RoomID: "LAB", Slot: mon9},
		models.Assignment{ID: "d", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9},
	)

	conflicts, err := DetectConflicts(catalog, set)
	require.NoError(t, err)

	order := make([]models.ConflictKind, 0)
	for _, c := range conflicts {
		if len(order) == 0 || order[len(order)-1] != c.Kind {
			order = append(order, c.Kind)
		}
	}
	assert.Equal(t, []models.ConflictKind{
		models.ConflictFacultyDoubleBooking,
		models.ConflictRoomDoubleBooking,
		models.ConflictFacultyUnavailable,
	}, order)
}

func TestDetectConflictsIsIdempotentAndConcurrent(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t,
		models.Assignment{ID: "a", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: tue9},
		models.Assignment{ID: "b", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: tue9},
	)
	first, err := DetectConflicts(catalog, set)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]models.Conflict, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = DetectConflicts(catalog, set)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, first, r)
	}
}

func TestDetectConflictsFailsOnUnknownReference(t *testing.T) {
	catalog := editorCatalog(t)
	set := mustSet(t, models.Assignment{ID: "a", CourseID: "math", FacultyID: "ghost", RoomID: "R1", Slot: mon9})

	_, err := DetectConflicts(catalog, set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrReference))
}

func TestDiffConflicts(t *testing.T) {
	slot := mon9
	kept := models.Conflict{Kind: models.ConflictRoomDoubleBooking, AssignmentIDs: []string{"a", "b"}, ResourceID: "R1", Slot: &slot}
	gone := models.Conflict{Kind: models.ConflictCapacityOverflow, AssignmentIDs: []string{"c"}, ResourceID: "R1", Slot: &slot}
	added := models.Conflict{Kind: models.ConflictFacultyUnavailable, AssignmentIDs: []string{"a"}, ResourceID: "ana", Slot: &slot}
	reordered := kept
	reordered.AssignmentIDs = []string{"b", "a"}

	diff := DiffConflicts([]models.Conflict{kept, gone}, []models.Conflict{reordered, added})
	assert.Equal(t, []models.Conflict{added}, diff.Introduced)
	assert.Equal(t, []models.Conflict{gone}, diff.Resolved)
}
