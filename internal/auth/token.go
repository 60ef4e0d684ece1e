// Package auth issues and verifies the bearer tokens that identify a caller.
package auth

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/utils/log"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const issuer = "e2e_relay"

type (
	Claims struct {
		Handle string `json:"handle"`
		jwt.RegisteredClaims
	}

	// Identity is the authenticated caller.
	Identity struct {
		UserID uuid.UUID
		Handle string
	}

	Issuer struct {
		secret []byte
		ttl    time.Duration
		now    func() time.Time
	}
)

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

func (i *Issuer) Issue(user uuid.UUID, handle string) (string, error) {
	now := i.now()
	claims := Claims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// Parse verifies token and returns the identity in it. Every failure is
// apperr.ErrInvalidToken.
func (i *Issuer) Parse(token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		log.Debug("token rejected", zap.Error(err))
		return Identity{}, apperr.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, apperr.ErrInvalidToken
	}
	return Identity{UserID: id, Handle: claims.Handle}, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
