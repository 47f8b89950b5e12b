package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func TestNewCatalogRejectsInvalidEntities(t *testing.T) {
	course := models.Course{ID: "c", Subject: "Math", WeeklyHours: 1, Type: models.CourseTypeCore}
	faculty := models.Faculty{ID: "f", Subjects: []string{"Math"}}
	room := models.Room{ID: "r", Capacity: 10}
	slots := gridSlots(mon9)

	cases := map[string]struct {
		courses []models.Course
		faculty []models.Faculty
		rooms   []models.Room
		slots   []models.TimeSlot
		want    *appErrors.Error
	}{
		"duplicate course":   {[]models.Course{course, course}, []models.Faculty{faculty}, []models.Room{room}, slots, appErrors.ErrValidation},
		"zero capacity":      {[]models.Course{course}, []models.Faculty{faculty}, []models.Room{{ID: "r"}}, slots, appErrors.ErrValidation},
		"zero weekly hours":  {[]models.Course{{ID: "c", Subject: "Math", Type: models.CourseTypeCore}}, []models.Faculty{faculty}, []models.Room{room}, slots, appErrors.ErrValidation},
		"unknown type":       {[]models.Course{{ID: "c", Subject: "Math", WeeklyHours: 1, Type: "seminar"}}, []models.Faculty{faculty}, []models.Room{room}, slots, appErrors.ErrValidation},
		"slot outside grid":  {[]models.Course{course}, []models.Faculty{faculty}, []models.Room{room}, []models.TimeSlot{{Day: 8, Period: 1}}, appErrors.ErrValidation},
		"duplicate slot":     {[]models.Course{course}, []models.Faculty{faculty}, []models.Room{room}, gridSlots(mon9, mon9), appErrors.ErrValidation},
		"unknown eligible":   {[]models.Course{{ID: "c", Subject: "Math", WeeklyHours: 1, Type: models.CourseTypeCore, EligibleFaculty: []string{"ghost"}}}, []models.Faculty{faculty}, []models.Room{room}, slots, appErrors.ErrReference},
		"duplicate faculty":  {[]models.Course{course}, []models.Faculty{faculty, faculty}, []models.Room{room}, slots, appErrors.ErrValidation},
		"negative committed": {[]models.Course{course}, []models.Faculty{{ID: "f", Subjects: []string{"Math"}, CommittedHours: -1}}, []models.Room{room}, slots, appErrors.ErrValidation},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCatalog(tc.courses, tc.faculty, tc.rooms, tc.slots)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestCatalogOrdersSlotsAndEntities(t *testing.T) {
	catalog, err := NewCatalog(nil,
		[]models.Faculty{{ID: "z", Subjects: []string{"x"}}, {ID: "a", Subjects: []string{"x"}}},
		[]models.Room{{ID: "R2", Capacity: 1}, {ID: "R1", Capacity: 1}},
		gridSlots(tue9, mon10, mon9),
	)
	require.NoError(t, err)

	slots := catalog.Slots()
	assert.Equal(t, []models.SlotKey{mon9, mon10, tue9}, []models.SlotKey{slots[0].Key(), slots[1].Key(), slots[2].Key()})
	assert.Equal(t, "a", catalog.FacultyMembers()[0].ID)
	assert.Equal(t, "R1", catalog.Rooms()[0].ID)
}

func TestValidateAssignment(t *testing.T) {
	catalog := editorCatalog(t)
	valid := models.Assignment{ID: "a1", CourseID: "math", FacultyID: "ana", RoomID: "R1", Slot: mon9}
	require.NoError(t, catalog.ValidateAssignment(valid))

	unknownCourse := valid
	unknownCourse.CourseID = "history"
	assert.True(t, errors.Is(catalog.ValidateAssignment(unknownCourse), appErrors.ErrReference))

	unknownRoom := valid
	unknownRoom.RoomID = "R9"
	assert.True(t, errors.Is(catalog.ValidateAssignment(unknownRoom), appErrors.ErrReference))

	unknownSlot := valid
	unknownSlot.Slot = models.SlotKey{Day: models.Friday, Period: 7}
	assert.True(t, errors.Is(catalog.ValidateAssignment(unknownSlot), appErrors.ErrReference))

	unqualified := valid
	unqualified.CourseID = "chem"
	assert.True(t, errors.Is(catalog.ValidateAssignment(unqualified), appErrors.ErrQualification))
}

func TestEligibleFacultyNarrowedByCourseList(t *testing.T) {
	catalog, err := NewCatalog(
		[]models.Course{{ID: "c", Subject: "Math", WeeklyHours: 1, Type: models.CourseTypeCore, EligibleFaculty: []string{"f2"}}},
		[]models.Faculty{{ID: "f1", Subjects: []string{"math"}}, {ID: "f2", Subjects: []string{"Math"}}},
		[]models.Room{{ID: "r", Capacity: 5}},
		gridSlots(mon9),
	)
	require.NoError(t, err)

	course, _ := catalog.Course("c")
	eligible := catalog.EligibleFaculty(course)
	require.Len(t, eligible, 1)
	assert.Equal(t, "f2", eligible[0].ID)
}
