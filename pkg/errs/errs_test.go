package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/furlat/Abstractions-sub003/pkg/errs"
)

func TestIsMatchesByCodeIgnoringDetailsAndCause(t *testing.T) {
	wrapped := errs.ErrNotFound.WithDetails(map[string]any{"id": "x"}).WithInternal(errors.New("boom"))
	assert.ErrorIs(t, wrapped, errs.ErrNotFound)
	assert.NotErrorIs(t, wrapped, errs.ErrAlreadyRegistered)
}

func TestUnwrapExposesInternalCause(t *testing.T) {
	cause := errors.New("underlying failure")
	wrapped := errs.ErrFunctionFailed.WithInternal(cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWithMethodsReturnIndependentCopies(t *testing.T) {
	base := errs.ErrTypeMismatch
	withDetails := base.WithDetails(map[string]any{"field": "age"})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]any{"field": "age"}, withDetails.Details)
	assert.ErrorIs(t, withDetails, base)
}

func TestErrorStringIncludesInternalWhenPresent(t *testing.T) {
	plain := errs.ErrPathError
	assert.Equal(t, "path_error: address path cannot be walked", plain.Error())

	withCause := plain.WithInternal(errors.New("index out of range"))
	assert.Contains(t, withCause.Error(), "path_error: address path cannot be walked")
	assert.Contains(t, withCause.Error(), "index out of range")
}
