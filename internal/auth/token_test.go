package auth

import (
	"testing"
	"time"

	"e2e_relay/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	user := uuid.New()

	t.Run("round trip", func(t *testing.T) {
		tok, err := iss.Issue(user, "alice@example.com")
		require.NoError(t, err)

		id, err := iss.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, Identity{UserID: user, Handle: "alice@example.com"}, id)
	})

	t.Run("other secret", func(t *testing.T) {
		tok, err := NewIssuer("other", time.Hour).Issue(user, "alice@example.com")
		require.NoError(t, err)

		_, err = iss.Parse(tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewIssuer("secret", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.Issue(user, "alice@example.com")
		require.NoError(t, err)

		_, err = iss.Parse(tok)
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = iss.Parse(tok)
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := iss.Parse("not-a-token")
		assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	})
}
