package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrInvalidRange, "end 2026-01-01 precedes start 2026-02-01")

	assert.True(t, errors.Is(err, ErrInvalidRange))
	assert.False(t, errors.Is(err, ErrEmptyCatalog))
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "INVALID_RANGE", err.Code)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	plain := fmt.Errorf("disk full")
	appErr := FromError(plain)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, plain)
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("loading: %w", ErrEmptyCatalog)
	assert.Equal(t, ErrEmptyCatalog.Code, FromError(wrapped).Code)
}
