package errs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"merchantdispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectNotFoundError(t *testing.T) {
	t.Run("NewObjectNotFoundError", func(t *testing.T) {
		err := errs.NewObjectNotFoundError("orderCode", "ORD-123")

		assert.Equal(t, "orderCode", err.ParamName)
		assert.Equal(t, "ORD-123", err.ID)
		require.NoError(t, err.Cause)
		assert.Equal(t, "object not found: ORD-123", err.Error())
		assert.Equal(t, errs.ErrObjectNotFound, err.Unwrap())
	})

	t.Run("NewObjectNotFoundErrorWithCause", func(t *testing.T) {
		cause := errors.New("session closed")
		err := errs.NewObjectNotFoundErrorWithCause("batchKey", "b-1", cause)

		assert.Equal(t,
			"object not found: param is: batchKey, ID is: b-1 (cause: session closed)",
			err.Error())
		require.ErrorIs(t, err, errs.ErrObjectNotFound)
	})
}

func TestValueIsInvalidError(t *testing.T) {
	t.Run("NewValueIsInvalidError", func(t *testing.T) {
		err := errs.NewValueIsInvalidError("reason")

		assert.Equal(t, "reason", err.ParamName)
		assert.Equal(t, "value is invalid: reason", err.Error())
		assert.Equal(t, errs.ErrValueIsInvalid, err.Unwrap())
	})

	t.Run("NewValueIsInvalidErrorWithCause", func(t *testing.T) {
		cause := errors.New("too short")
		err := errs.NewValueIsInvalidErrorWithCause("reason", cause)

		assert.Equal(t, cause, err.Cause)
		assert.Equal(t, "value is invalid: reason (cause: too short)", err.Error())
	})
}

func TestValueIsOutOfRangeError(t *testing.T) {
	t.Run("NewValueIsOutOfRangeError", func(t *testing.T) {
		err := errs.NewValueIsOutOfRangeError("lat", 91.5, -90, 90)

		assert.Equal(t, 91.5, err.Value)
		assert.Equal(t, "value is invalid: 91.5 is lat, min value is -90, max value is 90", err.Error())
		assert.Equal(t, errs.ErrValueIsOutOfRange, err.Unwrap())
	})

	t.Run("sanitize function with newlines", func(t *testing.T) {
		err := errs.NewValueIsOutOfRangeError("text", "hello\nworld", 0, 10)
		assert.Contains(t, err.Error(), "hello world")
		assert.NotContains(t, err.Error(), "\n")
	})
}

func TestValueIsRequiredError(t *testing.T) {
	err := errs.NewValueIsRequiredError("passenger_id")

	assert.Equal(t, "value is required: passenger_id", err.Error())
	require.ErrorIs(t, err, errs.ErrValueIsRequired)

	withCause := errs.NewValueIsRequiredErrorWithCause("estimated_minutes", errors.New("must be positive"))
	assert.Equal(t, "value is required: estimated_minutes (cause: must be positive)", withCause.Error())
}

func TestNetworkError(t *testing.T) {
	t.Run("transport failure keeps cause reachable", func(t *testing.T) {
		err := errs.NewNetworkError("PUT orders/A1/status", context.DeadlineExceeded)

		require.ErrorIs(t, err, errs.ErrNetwork)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "PUT orders/A1/status")
	})

	t.Run("status error", func(t *testing.T) {
		err := errs.NewNetworkStatusError("POST dispatch-broadcast", 502, "bad\ngateway")

		assert.Equal(t, 502, err.StatusCode)
		assert.Equal(t,
			"network request failed: POST dispatch-broadcast: HTTP 502 (cause: bad gateway)",
			err.Error())
	})

	t.Run("wrapped network error is still detected", func(t *testing.T) {
		err := fmt.Errorf("broadcast: %w", errs.NewNetworkError("op", errors.New("refused")))
		require.ErrorIs(t, err, errs.ErrNetwork)
		assert.False(t, errs.IsValidation(err))
	})
}

func TestIsValidation(t *testing.T) {
	assert.True(t, errs.IsValidation(errs.NewValueIsRequiredError("x")))
	assert.True(t, errs.IsValidation(errs.NewValueIsInvalidError("x")))
	assert.True(t, errs.IsValidation(fmt.Errorf("wrap: %w", errs.NewValueIsOutOfRangeError("x", 1, 2, 3))))
	assert.True(t, errs.IsValidation(errors.Join(errors.New("other"), errs.NewValueIsInvalidError("y"))))
	assert.False(t, errs.IsValidation(errs.NewObjectNotFoundError("x", "1")))
	assert.False(t, errs.IsValidation(nil))
}
