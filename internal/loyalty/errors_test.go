package loyalty

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlreadyUsedError(t *testing.T) {
	usedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("with timestamp", func(t *testing.T) {
		err := &AlreadyUsedError{CodeID: "BRAKE01", ProductName: "Brake Pads", UsedAt: &usedAt}
		assert.Contains(t, err.Error(), "BRAKE01")
		assert.Contains(t, err.Error(), "2026-03-14T09:26:53Z")
	})

	t.Run("without timestamp", func(t *testing.T) {
		err := &AlreadyUsedError{CodeID: "BRAKE01"}
		assert.Contains(t, err.Error(), "already used")
	})

	t.Run("detectable through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("redeem: %w", &AlreadyUsedError{CodeID: "BRAKE01"})

		var alreadyUsed *AlreadyUsedError
		assert.True(t, errors.As(wrapped, &alreadyUsed))
		assert.Equal(t, "BRAKE01", alreadyUsed.CodeID)
	})
}

func TestTransient(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, Transient("redeem commit", nil))
	})

	t.Run("wraps and unwraps the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Transient("session resolve", cause)

		var transient *TransientError
		assert.True(t, errors.As(err, &transient))
		assert.Equal(t, "session resolve", transient.Op)
		assert.ErrorIs(t, err, cause)
	})
}

func TestInvariantError(t *testing.T) {
	err := &InvariantError{AccountID: "acc-1", LedgerSum: 120, CachedValue: 150}
	assert.Contains(t, err.Error(), "acc-1")
	assert.Contains(t, err.Error(), "120")
	assert.Contains(t, err.Error(), "150")
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidFormat, ErrCodeNotFound, ErrUnauthenticated,
		ErrForbidden, ErrCodeExists, ErrPointsRange,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
