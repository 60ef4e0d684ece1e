package contact

import (
	"context"
	"testing"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository/memory"
	"e2e_relay/internal/repository/repotest"
	"e2e_relay/internal/service/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memory.Store
	registry *presence.Registry
	svc      *Service
}

func newFixture() *fixture {
	store := memory.New()
	registry := presence.NewRegistry()
	return &fixture{
		store:    store,
		registry: registry,
		svc:      NewService(store.Users(), store.Contacts(), presence.NewNotifier(registry)),
	}
}

func TestRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("online target is notified in the same call", func(t *testing.T) {
		f := newFixture()
		carol := repotest.NewUser(t, f.store, "carol")
		dave := repotest.NewUser(t, f.store, "dave")
		session := presence.NewRecordingSession()
		f.registry.Connect(dave.ID, session)

		c, err := f.svc.Request(ctx, carol.ID, dave.Handle)
		require.NoError(t, err)
		assert.Equal(t, model.ContactPending, c.Status)

		ev, ok := session.Last(model.EventContactRequest)
		require.True(t, ok)
		data := ev.Data.(model.ContactEvent)
		assert.Equal(t, carol.Handle, data.From)
		assert.Equal(t, c.ID, data.RequestID)
	})

	t.Run("handle lookup is case insensitive", func(t *testing.T) {
		f := newFixture()
		carol := repotest.NewUser(t, f.store, "carol")
		dave := repotest.NewUser(t, f.store, "dave")

		_, err := f.svc.Request(ctx, carol.ID, "  "+dave.Handle+" ")
		require.NoError(t, err)
	})

	t.Run("unknown target", func(t *testing.T) {
		f := newFixture()
		carol := repotest.NewUser(t, f.store, "carol")

		_, err := f.svc.Request(ctx, carol.ID, "ghost@example.com")
		assert.ErrorIs(t, err, apperr.ErrUserNotFound)
	})

	t.Run("self request", func(t *testing.T) {
		f := newFixture()
		carol := repotest.NewUser(t, f.store, "carol")

		_, err := f.svc.Request(ctx, carol.ID, carol.Handle)
		assert.True(t, apperr.IsConflict(err))
	})

	t.Run("offline target is not an error", func(t *testing.T) {
		f := newFixture()
		carol := repotest.NewUser(t, f.store, "carol")
		dave := repotest.NewUser(t, f.store, "dave")

		_, err := f.svc.Request(ctx, carol.ID, dave.Handle)
		require.NoError(t, err)

		pending, err := f.svc.PendingRequests(ctx, dave.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, carol.Handle, pending[0].Peer.Handle)
		assert.False(t, pending[0].Outgoing)

		outgoing, err := f.svc.PendingRequests(ctx, carol.ID)
		require.NoError(t, err)
		assert.Empty(t, outgoing, "requests the caller sent are not awaiting the caller")
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	alice := repotest.NewUser(t, f.store, "alice")
	bob := repotest.NewUser(t, f.store, "bob")
	aliceSession := presence.NewRecordingSession()
	f.registry.Connect(alice.ID, aliceSession)

	req, err := f.svc.Request(ctx, alice.ID, bob.Handle)
	require.NoError(t, err)

	t.Run("only the recipient may respond", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, alice.ID, req.ID, true)
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("unknown request", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, bob.ID, req.ID+100, true)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("reject then re-request yields pending", func(t *testing.T) {
		c, err := f.svc.Respond(ctx, bob.ID, req.ID, false)
		require.NoError(t, err)
		assert.Equal(t, model.ContactRejected, c.Status)

		ev, ok := aliceSession.Last(model.EventContactRequestResponse)
		require.True(t, ok)
		assert.Equal(t, model.ContactRejected, ev.Data.(model.ContactEvent).Status)

		again, err := f.svc.Request(ctx, alice.ID, bob.Handle)
		require.NoError(t, err)
		assert.Equal(t, req.ID, again.ID)
		assert.Equal(t, model.ContactPending, again.Status)

		rows, err := f.store.Contacts().ListByUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("accept opens the gate both ways", func(t *testing.T) {
		_, err := f.svc.Respond(ctx, bob.ID, req.ID, true)
		require.NoError(t, err)

		ok, err := f.svc.Accepted(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = f.svc.Accepted(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		contacts, err := f.svc.Contacts(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, contacts, 1)
		assert.Equal(t, alice.Handle, contacts[0].Peer.Handle)
	})

	t.Run("remove closes the gate and notifies", func(t *testing.T) {
		require.NoError(t, f.svc.Remove(ctx, bob.ID, alice.Handle))

		ev, ok := aliceSession.Last(model.EventContactRemoved)
		require.True(t, ok)
		assert.Equal(t, bob.Handle, ev.Data.(model.ContactEvent).From)

		ok, err := f.svc.Accepted(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		err = f.svc.Remove(ctx, bob.ID, alice.Handle)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("deleted pair can be requested again", func(t *testing.T) {
		c, err := f.svc.Request(ctx, bob.ID, alice.Handle)
		require.NoError(t, err)
		assert.Equal(t, model.ContactPending, c.Status)
		assert.Equal(t, bob.ID, c.RequesterID)
	})
}
