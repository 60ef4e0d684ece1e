package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestInfrastructure(t *testing.T) {
	t.Run("nil cause stays nil", func(t *testing.T) {
		assert.NoError(t, Infrastructure("query failed", nil))
	})

	t.Run("driver error becomes retryable", func(t *testing.T) {
		err := Infrastructure("query failed", errors.New("connection refused"))
		assert.True(t, IsInfrastructure(err))
		assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))

		var ae *AppError
		assert.True(t, errors.As(err, &ae))
		assert.True(t, ae.Retryable())
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("domain error passes through", func(t *testing.T) {
		err := Infrastructure("query failed", errors.Wrap(ErrRequestNotFound, "respond"))
		assert.True(t, IsNotFound(err))
		assert.False(t, IsInfrastructure(err))
	})
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   Code
		status int
	}{
		{"not found", ErrUserNotFound, CodeNotFound, http.StatusNotFound},
		{"conflict", ErrSelfContact, CodeConflict, http.StatusConflict},
		{"forbidden", ErrNotRecipient, CodeForbidden, http.StatusForbidden},
		{"unauthorized", ErrInvalidToken, CodeUnauthorized, http.StatusUnauthorized},
		{"invalid", ErrInvalidKey, CodeInvalidArgument, http.StatusBadRequest},
		{"foreign", errors.New("boom"), CodeUnknown, http.StatusInternalServerError},
		{"nil", nil, "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, CodeOf(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}

	assert.True(t, IsUnauthorized(ErrNotContacts))
	assert.True(t, IsUnauthorized(ErrMissingToken))
	assert.Equal(t, "internal error", Message(errors.New("secret detail")))
	assert.Equal(t, "contact not found", Message(errors.Wrap(ErrContactNotFound, "remove")))
}
