package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("save shift: %w", Missing("client"))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "client: missing required field")
}

func TestNoShiftIsValidationAndNotFound(t *testing.T) {
	err := NoShift("2024-05-01", "alice")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrShiftNotFound))
}

func TestFatalWrapsOnce(t *testing.T) {
	base := errors.New("database is locked")
	err := Fatal("upsert shift", base)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, base))
	assert.Same(t, err, Fatal("outer", err))
	assert.Nil(t, Fatal("noop", nil))
}
