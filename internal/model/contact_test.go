package model

import (
	"testing"
	"time"

	"e2e_relay/internal/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactTransitions(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	t0 := time.Unix(1_700_000_000, 0)
	t1 := t0.Add(time.Minute)

	t.Run("request creates pending", func(t *testing.T) {
		c, err := Request(nil, alice, bob, t0)
		require.NoError(t, err)
		assert.Equal(t, ContactPending, c.Status)
		assert.Equal(t, alice, c.RequesterID)
		assert.Equal(t, bob, c.RecipientID)
	})

	t.Run("self request conflicts", func(t *testing.T) {
		_, err := Request(nil, alice, alice, t0)
		assert.ErrorIs(t, err, apperr.ErrSelfContact)
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("repeat request re-arms timestamp", func(t *testing.T) {
		cur, _ := Request(nil, alice, bob, t0)
		cur.ID = 4
		next, err := Request(cur, alice, bob, t1)
		require.NoError(t, err)
		assert.Equal(t, int64(4), next.ID)
		assert.Equal(t, ContactPending, next.Status)
		assert.Equal(t, t1, next.UpdatedAt)
		assert.Equal(t, t0, cur.UpdatedAt, "input row must not be mutated")
	})

	t.Run("reverse pending conflicts", func(t *testing.T) {
		cur, _ := Request(nil, alice, bob, t0)
		_, err := Request(cur, bob, alice, t1)
		assert.ErrorIs(t, err, apperr.ErrReversePending)
	})

	t.Run("reject then request re-arms same row", func(t *testing.T) {
		cur, _ := Request(nil, alice, bob, t0)
		cur.ID = 9
		rejected, err := Respond(cur, bob, false, t1)
		require.NoError(t, err)
		assert.Equal(t, ContactRejected, rejected.Status)

		again, err := Request(rejected, alice, bob, t1)
		require.NoError(t, err)
		assert.Equal(t, int64(9), again.ID)
		assert.Equal(t, ContactPending, again.Status)
	})

	t.Run("only recipient responds", func(t *testing.T) {
		cur, _ := Request(nil, alice, bob, t0)
		_, err := Respond(cur, alice, true, t1)
		assert.ErrorIs(t, err, apperr.ErrNotRecipient)
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("respond without pending row", func(t *testing.T) {
		_, err := Respond(nil, bob, true, t1)
		assert.ErrorIs(t, err, apperr.ErrRequestNotFound)

		accepted := &Contact{RequesterID: alice, RecipientID: bob, Status: ContactAccepted}
		_, err = Respond(accepted, bob, true, t1)
		assert.ErrorIs(t, err, apperr.ErrRequestNotFound)
	})

	t.Run("accepted pair removal and re-request", func(t *testing.T) {
		cur, _ := Request(nil, alice, bob, t0)
		accepted, err := Respond(cur, bob, true, t1)
		require.NoError(t, err)

		_, err = Request(accepted, bob, alice, t1)
		assert.ErrorIs(t, err, apperr.ErrContactExists)

		deleted, err := Remove(accepted, bob, t1)
		require.NoError(t, err)
		assert.Equal(t, ContactDeleted, deleted.Status)

		_, err = Remove(deleted, alice, t1)
		assert.ErrorIs(t, err, apperr.ErrContactNotFound)

		again, err := Request(deleted, bob, alice, t1)
		require.NoError(t, err)
		assert.Equal(t, bob, again.RequesterID)
		assert.Equal(t, alice, again.RecipientID)
	})

	t.Run("outsider cannot remove", func(t *testing.T) {
		accepted := &Contact{RequesterID: alice, RecipientID: bob, Status: ContactAccepted}
		_, err := Remove(accepted, uuid.New(), t1)
		assert.ErrorIs(t, err, apperr.ErrContactNotFound)
	})
}

func TestPairKey(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	lo1, hi1 := PairKey(a, b)
	lo2, hi2 := PairKey(b, a)
	assert.Equal(t, lo1, lo2)
	assert.Equal(t, hi1, hi2)
	assert.NotEqual(t, lo1, hi1)
}

func TestHandles(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeHandle("  Alice@Example.COM "))
	assert.True(t, ValidHandle("alice@example.com"))
	assert.False(t, ValidHandle("alice"))
	assert.False(t, ValidHandle("Alice@example.com"))
}
