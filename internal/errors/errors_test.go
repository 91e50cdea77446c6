package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/ordertrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{NotFoundError("missing"), http.StatusNotFound},
		{ConflictError("dup"), http.StatusConflict},
		{InvalidStateError("illegal"), http.StatusUnprocessableEntity},
		{ForbiddenError("no"), http.StatusForbidden},
		{InternalError("boom", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.HTTPStatus(), tt.err.Type)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := InternalError("wrapper", cause)
	assert.ErrorIs(t, err, cause)
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		in   error
		want ErrorType
	}{
		{domain.ErrOrderNotFound, TypeNotFound},
		{domain.ErrOrderExists, TypeConflict},
		{domain.ErrInvalidTransition, TypeInvalidState},
		{domain.ErrInvalidState, TypeInvalidState},
		{domain.ErrForbidden, TypeForbidden},
		{errors.New("surprise"), TypeInternal},
		{fmt.Errorf("wrapped: %w", domain.ErrOrderNotFound), TypeNotFound},
	}
	for _, tt := range tests {
		got := FromDomain(tt.in)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, got.Type, tt.in.Error())
	}

	assert.Nil(t, FromDomain(nil))
}

func TestFromDomain_PassesThroughStructured(t *testing.T) {
	orig := ForbiddenError("token rejected")
	got := FromDomain(fmt.Errorf("auth: %w", orig))
	assert.Same(t, orig, got)
}
