package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func TestAssignmentSetRejectsDuplicateIDs(t *testing.T) {
	_, err := NewAssignmentSet([]models.Assignment{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = NewAssignmentSet([]models.Assignment{{}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAssignmentSetDeleteKeepsOrderAndIndex(t *testing.T) {
	set := mustSet(t, models.Assignment{ID: "a"}, models.Assignment{ID: "b"}, models.Assignment{ID: "c"})

	require.NoError(t, set.Delete("a"))
	got, ok := set.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.ID)
	assert.Equal(t, []models.Assignment{{ID: "b"}, {ID: "c"}}, set.All())

	assert.True(t, errors.Is(set.Delete("a"), appErrors.ErrNotFound))
}

func TestAssignmentSetCloneIsIndependent(t *testing.T) {
	set := mustSet(t, models.Assignment{ID: "a", Slot: mon9})
	clone := set.Clone()

	require.NoError(t, clone.Replace(models.Assignment{ID: "a", Slot: mon10}))
	require.NoError(t, clone.Add(models.Assignment{ID: "b"}))

	original, _ := set.Get("a")
	assert.Equal(t, mon9, original.Slot)
	assert.Equal(t, 1, set.Len())
	assert.False(t, set.Equal(clone))
	assert.True(t, set.Equal(set.Clone()))
}

func TestFingerprintTracksContent(t *testing.T) {
	a := mustSet(t, models.Assignment{ID: "a", CourseID: "math", Slot: mon9})
	b := mustSet(t, models.Assignment{ID: "a", CourseID: "math", Slot: mon9})
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 32)

	require.NoError(t, b.Replace(models.Assignment{ID: "a", CourseID: "math", Slot: mon10}))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
