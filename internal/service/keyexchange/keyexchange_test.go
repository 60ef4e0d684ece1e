package keyexchange

import (
	"context"
	"testing"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository/memory"
	"e2e_relay/internal/repository/repotest"
	"e2e_relay/internal/service/contact"
	"e2e_relay/internal/service/mocks"
	"e2e_relay/internal/service/presence"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *memory.Store
	registry *presence.Registry
	contacts *contact.Service
	svc      *Service

	alice, bob *model.User
}

// newFixture returns alice and bob as accepted contacts.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	registry := presence.NewRegistry()
	notifier := presence.NewNotifier(registry)
	contacts := contact.NewService(store.Users(), store.Contacts(), notifier)

	f := &fixture{
		store:    store,
		registry: registry,
		contacts: contacts,
		svc:      NewService(store.Users(), store.Prekeys(), store.Ephemerals(), contacts, notifier, true),
		alice:    repotest.NewUser(t, store, "alice"),
		bob:      repotest.NewUser(t, store, "bob"),
	}
	req, err := contacts.Request(ctx, f.alice.ID, f.bob.Handle)
	require.NoError(t, err)
	_, err = contacts.Respond(ctx, f.bob.ID, req.ID, true)
	require.NoError(t, err)
	return f
}

func TestFetchBundle(t *testing.T) {
	ctx := context.Background()

	t.Run("last prekey then degraded bundle", func(t *testing.T) {
		f := newFixture(t)
		uploads := repotest.Uploads(7, 1)
		_, err := f.store.Prekeys().Replenish(ctx, f.bob.ID, uploads)
		require.NoError(t, err)

		first, err := f.svc.FetchBundle(ctx, f.alice.ID, f.bob.Handle)
		require.NoError(t, err)
		assert.Equal(t, f.bob.IdentityKey, first.IdentityKey)
		assert.Equal(t, f.bob.SignedPrekey, first.SignedPrekey)
		require.NotNil(t, first.OneTimePrekey)
		assert.Equal(t, uint32(7), first.OneTimePrekey.KeyID)
		assert.Equal(t, uploads[0].PublicKey, first.OneTimePrekey.PublicKey)

		second, err := f.svc.FetchBundle(ctx, f.alice.ID, f.bob.Handle)
		require.NoError(t, err)
		assert.Nil(t, second.OneTimePrekey)
		assert.Equal(t, f.bob.SignedPrekey, second.SignedPrekey)

		n, err := f.store.Prekeys().CountUnused(ctx, f.bob.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("strangers are refused", func(t *testing.T) {
		f := newFixture(t)
		mallory := repotest.NewUser(t, f.store, "mallory")

		_, err := f.svc.FetchBundle(ctx, mallory.ID, f.bob.Handle)
		assert.ErrorIs(t, err, apperr.ErrNotContacts)
		assert.True(t, apperr.IsUnauthorized(err))
	})

	t.Run("unknown handle", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.FetchBundle(ctx, f.alice.ID, "nobody@example.com")
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestContactGate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	alice := repotest.NewUser(t, store, "alice")
	bob := repotest.NewUser(t, store, "bob")
	notifier := presence.NewNotifier(presence.NewRegistry())

	t.Run("gate error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockContactGate(ctrl)
		gate.EXPECT().Accepted(gomock.Any(), alice.ID, bob.ID).Return(false, apperr.Infrastructure("get contact", errors.New("timeout")))

		svc := NewService(store.Users(), store.Prekeys(), store.Ephemerals(), gate, notifier, true)
		_, _, err := svc.SendEphemeral(ctx, alice.ID, bob.Handle, repotest.Key(), nil)
		assert.True(t, apperr.IsInfrastructure(err))
	})

	t.Run("gate is skipped when contacts are not required", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		gate := mocks.NewMockContactGate(ctrl)
		gate.EXPECT().Accepted(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		svc := NewService(store.Users(), store.Prekeys(), store.Ephemerals(), gate, notifier, false)
		b, err := svc.FetchBundle(ctx, alice.ID, bob.Handle)
		require.NoError(t, err)
		assert.Nil(t, b.OneTimePrekey)
	})
}

func TestEphemeral(t *testing.T) {
	ctx := context.Background()

	t.Run("offline recipient retrieves the newest key", func(t *testing.T) {
		f := newFixture(t)
		id := uint32(3)

		_, live, err := f.svc.SendEphemeral(ctx, f.alice.ID, f.bob.Handle, repotest.Key(), nil)
		require.NoError(t, err)
		assert.False(t, live)

		newest := repotest.Key()
		sent, live, err := f.svc.SendEphemeral(ctx, f.alice.ID, f.bob.Handle, newest, &id)
		require.NoError(t, err)
		assert.False(t, live)

		got, err := f.svc.RetrieveEphemeral(ctx, f.bob.ID, f.alice.Handle)
		require.NoError(t, err)
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, newest, got.PublicKey)
		require.NotNil(t, got.PrekeyID)
		assert.Equal(t, id, *got.PrekeyID)
	})

	t.Run("direction matters", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.SendEphemeral(ctx, f.alice.ID, f.bob.Handle, repotest.Key(), nil)
		require.NoError(t, err)

		_, err = f.svc.RetrieveEphemeral(ctx, f.alice.ID, f.bob.Handle)
		assert.ErrorIs(t, err, apperr.ErrEphemeralNotFound)
	})

	t.Run("online recipient gets a push", func(t *testing.T) {
		f := newFixture(t)
		session := presence.NewRecordingSession()
		f.registry.Connect(f.bob.ID, session)

		key := repotest.Key()
		sent, live, err := f.svc.SendEphemeral(ctx, f.alice.ID, f.bob.Handle, key, nil)
		require.NoError(t, err)
		assert.True(t, live)

		ev, ok := session.Last(model.EventEphemeralKey)
		require.True(t, ok)
		data := ev.Data.(model.EphemeralKeyEvent)
		assert.Equal(t, sent.ID, data.ID)
		assert.Equal(t, f.alice.Handle, data.From)
		assert.Equal(t, key, data.EphemeralKey)
		assert.Nil(t, data.PrekeyID)
	})

	t.Run("malformed key", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.SendEphemeral(ctx, f.alice.ID, f.bob.Handle, []byte("short"), nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidKey)
	})
}

func TestRelayRatchetKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	live, err := f.svc.RelayRatchetKey(ctx, f.alice.ID, f.bob.Handle, repotest.Key())
	require.NoError(t, err)
	assert.False(t, live, "offline recipient drops the key")

	session := presence.NewRecordingSession()
	f.registry.Connect(f.bob.ID, session)
	key := repotest.Key()

	live, err = f.svc.RelayRatchetKey(ctx, f.alice.ID, f.bob.Handle, key)
	require.NoError(t, err)
	assert.True(t, live)

	ev, ok := session.Last(model.EventRatchetKey)
	require.True(t, ok)
	assert.Equal(t, model.RatchetKeyEvent{From: f.alice.Handle, RatchetKey: key}, ev.Data)

	_, err = f.svc.RelayRatchetKey(ctx, f.alice.ID, f.bob.Handle, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidKey)
}
