package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsKind(t *testing.T) {
	notYourTurn := New(ErrConflict, "not your turn")
	wrapped := fmt.Errorf("make shot: %w", notYourTurn)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.True(t, errors.Is(wrapped, notYourTurn))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, "make shot: not your turn", wrapped.Error())
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrUnavailable, cause, "store get")

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "store get: dial tcp: connection refused", err.Error())
	assert.True(t, Retryable(err))
}

func TestWithDetails(t *testing.T) {
	base := New(ErrValidation, "invalid ship placement")
	err := fmt.Errorf("place ships: %w", base.WithDetails([]string{"carrier out of bounds"}))

	assert.Equal(t, []string{"carrier out of bounds"}, Details(err))
	assert.Nil(t, base.Details)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, base))
	assert.False(t, errors.Is(err, New(ErrValidation, "cell already hit")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
	}{
		{"not found", New(ErrNotFound, "game not found"), http.StatusNotFound, "not_found"},
		{"bad state", New(ErrBadState, "game is not active"), http.StatusConflict, "bad_state"},
		{"validation", New(ErrValidation, "out of range"), http.StatusUnprocessableEntity, "validation"},
		{"conflict", New(ErrConflict, "not your turn"), http.StatusConflict, "conflict"},
		{"unavailable", New(ErrUnavailable, "store down"), http.StatusServiceUnavailable, "unavailable"},
		{"unauthenticated", New(ErrUnauthenticated, "missing token"), http.StatusUnauthorized, "unauthenticated"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
			assert.Equal(t, tt.kind, KindName(tt.err))
		})
	}
}
