package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("save: %w", Clone(ErrNotFound, "proposal not found or expired"))
	got := FromError(wrapped)
	assert.Equal(t, ErrNotFound.Code, got.Code)
	assert.Equal(t, "proposal not found or expired", got.Message)

	plain := FromError(errors.New("disk full"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.Status)
	assert.EqualError(t, plain, "internal server error: disk full")

	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotMutatePredefined(t *testing.T) {
	clone := Clone(ErrConflict, "proposal has 2 violations")
	assert.Equal(t, "conflict", ErrConflict.Message)
	assert.Equal(t, "proposal has 2 violations", clone.Message)
	assert.Equal(t, ErrConflict.Message, Clone(ErrConflict, "").Message)
}

func TestWithDetailsSerialises(t *testing.T) {
	err := Clone(ErrConflict, "proposal has violations").WithDetails([]string{"Class c-1 missing math"})
	assert.Nil(t, ErrConflict.Details)

	raw, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"code":"CONFLICT","message":"proposal has violations","status":409,"details":["Class c-1 missing math"]}`, string(raw))

	raw, marshalErr = json.Marshal(ErrNotFound)
	require.NoError(t, marshalErr)
	assert.NotContains(t, string(raw), "details")
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		client bool
	}{
		{name: "validation", err: ErrValidation, client: true},
		{name: "wrapped conflict", err: fmt.Errorf("job: %w", ErrConflict), client: true},
		{name: "internal", err: ErrInternal, client: false},
		{name: "unavailable", err: ErrUnavailable, client: false},
		{name: "plain", err: errors.New("boom"), client: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.client, IsClient(tc.err))
		})
	}

	assert.True(t, HasCode(Wrap(errors.New("x"), "PUBLISHED", http.StatusConflict, "published"), ErrPublished.Code))
	assert.False(t, HasCode(errors.New("x"), ErrPublished.Code))
}
