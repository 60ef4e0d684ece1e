package client

import (
	"testing"

	"e2e_relay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyring(t *testing.T, handle string) *Keyring {
	t.Helper()
	k, err := NewKeyring(t.TempDir(), handle)
	require.NoError(t, err)
	return k
}

func bundleOf(t *testing.T, k *Keyring, withPrekey bool) *model.PrekeyBundle {
	t.Helper()
	b := &model.PrekeyBundle{
		Handle:       k.Handle,
		IdentityKey:  k.IdentityKey(),
		SignedPrekey: k.SignedPrekey(),
	}
	if withPrekey {
		up, err := k.GeneratePrekeys(1)
		require.NoError(t, err)
		b.OneTimePrekey = &model.OneTimePrekey{KeyID: up[0].KeyID, PublicKey: up[0].PublicKey}
	}
	return b
}

func handshake(t *testing.T, alice, bob *Keyring, withPrekey bool) (*Sessions, *Sessions) {
	t.Helper()
	as, bs := NewSessions(alice), NewSessions(bob)

	ek, prekeyID, err := as.Initiate("bob@example.com", bundleOf(t, bob, withPrekey))
	require.NoError(t, err)
	require.NoError(t, bs.Accept("alice@example.com", alice.IdentityKey(), &model.EphemeralKey{
		PublicKey: ek[:],
		PrekeyID:  prekeyID,
	}))
	return as, bs
}

func TestConversation(t *testing.T) {
	for _, withPrekey := range []bool{true, false} {
		alice := newKeyring(t, "alice@example.com")
		bob := newKeyring(t, "bob@example.com")
		as, bs := handshake(t, alice, bob, withPrekey)

		kind, blob, err := as.Seal("bob@example.com", []byte("hi bob"))
		require.NoError(t, err)
		assert.Equal(t, model.KindHandshake, kind)

		kind, second, err := as.Seal("bob@example.com", []byte("still there?"))
		require.NoError(t, err)
		assert.Equal(t, model.KindText, kind)

		_, _, err = bs.Seal("alice@example.com", []byte("too early"))
		assert.Error(t, err, "responder cannot send before the first message")

		plain, err := bs.Open("alice@example.com", blob)
		require.NoError(t, err)
		assert.Equal(t, "hi bob", string(plain))
		plain, err = bs.Open("alice@example.com", second)
		require.NoError(t, err)
		assert.Equal(t, "still there?", string(plain))

		kind, reply, err := bs.Seal("alice@example.com", []byte("hi alice"))
		require.NoError(t, err)
		assert.Equal(t, model.KindText, kind)
		plain, err = as.Open("bob@example.com", reply)
		require.NoError(t, err)
		assert.Equal(t, "hi alice", string(plain))

		if withPrekey {
			assert.Empty(t, bob.Prekeys, "one-time prekey is consumed")
		}
	}
}

func TestInitiateRejectsForgedPrekey(t *testing.T) {
	alice := newKeyring(t, "alice@example.com")
	bob := newKeyring(t, "bob@example.com")
	mallory := newKeyring(t, "mallory@example.com")

	b := bundleOf(t, bob, false)
	b.SignedPrekey = mallory.SignedPrekey()

	_, _, err := NewSessions(alice).Initiate("bob@example.com", b)
	assert.ErrorIs(t, err, ErrBadSignedPrekey)
	assert.False(t, NewSessions(alice).Has("bob@example.com"))
}

func TestAcceptUnknownPrekey(t *testing.T) {
	alice := newKeyring(t, "alice@example.com")
	bob := newKeyring(t, "bob@example.com")

	missing := uint32(77)
	err := NewSessions(bob).Accept("alice@example.com", alice.IdentityKey(), &model.EphemeralKey{
		PublicKey: make([]byte, 32),
		PrekeyID:  &missing,
	})
	assert.ErrorIs(t, err, ErrUnknownPrekey)
}

func TestOpenWithoutSession(t *testing.T) {
	s := NewSessions(newKeyring(t, "bob@example.com"))
	_, err := s.Open("alice@example.com", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNoSession)
	_, _, err = s.Seal("alice@example.com", []byte("x"))
	assert.ErrorIs(t, err, ErrNoSession)
}
