package account

import (
	"context"
	"testing"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository/memory"
	"e2e_relay/internal/repository/repotest"
	"e2e_relay/internal/service/prekey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registration(handle string) Registration {
	return Registration{
		Handle:      handle,
		IdentityKey: repotest.Key(),
		SignedPrekey: model.SignedPrekey{
			KeyID:     1,
			PublicKey: repotest.Key(),
			Signature: []byte("sig"),
		},
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store.Users(), prekey.NewService(store.Prekeys(), 10))

	t.Run("handle is normalized and prekeys uploaded", func(t *testing.T) {
		reg := registration(" Alice@Example.com")
		reg.Prekeys = repotest.Uploads(1, 3)

		u, err := svc.Register(ctx, reg)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", u.Handle)

		n, err := store.Prekeys().CountUnused(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		found, err := svc.Lookup(ctx, "ALICE@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)
	})

	t.Run("duplicate handle", func(t *testing.T) {
		_, err := svc.Register(ctx, registration("alice@example.com"))
		assert.ErrorIs(t, err, apperr.ErrHandleTaken)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := svc.Register(ctx, registration("alice"))
		assert.ErrorIs(t, err, apperr.ErrInvalidHandle)

		reg := registration("bob@example.com")
		reg.IdentityKey = make([]byte, model.MaxIdentityKeyLen+1)
		_, err = svc.Register(ctx, reg)
		assert.ErrorIs(t, err, apperr.ErrInvalidIdentityKey)

		reg = registration("bob@example.com")
		reg.SignedPrekey.Signature = nil
		_, err = svc.Register(ctx, reg)
		assert.ErrorIs(t, err, apperr.ErrInvalidSignature)

		reg = registration("bob@example.com")
		reg.SignedPrekey.PublicKey = []byte{1}
		_, err = svc.Register(ctx, reg)
		assert.ErrorIs(t, err, apperr.ErrInvalidKey)
	})
}

func TestRotateSignedPrekey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store.Users(), prekey.NewService(store.Prekeys(), 10))
	u, err := svc.Register(ctx, registration("carol@example.com"))
	require.NoError(t, err)

	next := model.SignedPrekey{KeyID: 2, PublicKey: repotest.Key(), Signature: []byte("sig2")}
	require.NoError(t, svc.RotateSignedPrekey(ctx, u.ID, next))

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, next, got.SignedPrekey)
}
