package bookingerr_test

import (
	"errors"
	"fmt"
	"testing"

	"confwaitlist/internal/bookingerr"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[bookingerr.Kind]int{
		bookingerr.Validation:     400,
		bookingerr.NotFound:       404,
		bookingerr.Conflict:       400,
		bookingerr.StateViolation: 400,
		bookingerr.Transient:      500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "validation", bookingerr.Validation.String())
	assert.Equal(t, "not_found", bookingerr.NotFound.String())
	assert.Equal(t, "conflict", bookingerr.Conflict.String())
	assert.Equal(t, "state_violation", bookingerr.StateViolation.String())
	assert.Equal(t, "transient", bookingerr.Transient.String())
}

func TestNewHasNoCause(t *testing.T) {
	err := bookingerr.New(bookingerr.NotFound, "conference not found")
	assert.Equal(t, "not_found: conference not found", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapCarriesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := bookingerr.Wrap(bookingerr.Transient, "loading booking", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	original := bookingerr.New(bookingerr.Conflict, "duplicate booking")
	wrapped := fmt.Errorf("creating booking: %w", original)

	got, ok := bookingerr.As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, bookingerr.Conflict, got.Kind)
}

func TestAsFailsOnPlainError(t *testing.T) {
	_, ok := bookingerr.As(errors.New("not a kinded error"))
	assert.False(t, ok)
}
