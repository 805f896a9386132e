package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("submission")))

	wrapped := fmt.Errorf("load: %w", InvalidTransition("draft", "promote"))
	assert.Equal(t, KindInvalidStateTransition, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInvalidStateTransition))
	assert.False(t, Is(wrapped, KindConflict))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal error", err.Message)
}

func TestWithField(t *testing.T) {
	err := Validation("invalid body").WithField("reason", "required")
	assert.Equal(t, map[string]string{"reason": "required"}, err.Fields)
}

func TestUpgradeRequiredDetails(t *testing.T) {
	err := UpgradeRequired("partner")
	assert.Equal(t, map[string]string{"requiredPlan": "partner"}, err.Details)
}
