package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	cloned := Clone(ErrNotFound, "assignment a1 not found")
	wrapped := fmt.Errorf("edit: %w", cloned)

	assert.True(t, stdErrors.Is(wrapped, ErrNotFound))
	assert.False(t, stdErrors.Is(wrapped, ErrConflict))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := FromError(Clone(ErrSlotOccupied, ""))
	assert.Equal(t, "SLOT_OCCUPIED", typed.Code)
	assert.Equal(t, http.StatusConflict, typed.Status)
	assert.Nil(t, FromError(nil))
}
