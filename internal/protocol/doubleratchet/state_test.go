package doubleratchet

import (
	"encoding/json"
	"fmt"
	"testing"

	"e2e_relay/internal/cryptographic/dh"
	"e2e_relay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) (alice, bob *RatchetState) {
	t.Helper()
	sk := make([]byte, 32)
	sk[0] = 7
	spkPriv, spkPub, err := dh.NewX25519KeyPair()
	require.NoError(t, err)
	return NewInitiator(sk, spkPub), NewResponder(sk, spkPriv)
}

type sealed struct {
	h  model.Header
	ct []byte
}

func send(t *testing.T, s *RatchetState, msg string) sealed {
	t.Helper()
	h, ct, err := s.Send([]byte(msg))
	require.NoError(t, err)
	return sealed{*h, ct}
}

func recv(t *testing.T, s *RatchetState, m sealed) string {
	t.Helper()
	plain, err := s.Receive(m.h, m.ct)
	require.NoError(t, err)
	return string(plain)
}

func TestConversation(t *testing.T) {
	alice, bob := newSession(t)
	assert.False(t, bob.CanSend())
	_, _, err := bob.Send([]byte("too early"))
	assert.ErrorIs(t, err, ErrNoRemoteKey)

	assert.Equal(t, "hi bob", recv(t, bob, send(t, alice, "hi bob")))
	assert.True(t, bob.CanSend())

	for i := 0; i < 3; i++ {
		msg := fmt.Sprintf("round %d", i)
		assert.Equal(t, msg, recv(t, alice, send(t, bob, msg)))
		assert.Equal(t, msg, recv(t, bob, send(t, alice, msg)))
	}
}

func TestOutOfOrder(t *testing.T) {
	alice, bob := newSession(t)
	m1 := send(t, alice, "one")
	m2 := send(t, alice, "two")
	m3 := send(t, alice, "three")

	assert.Equal(t, "three", recv(t, bob, m3))
	assert.Equal(t, "one", recv(t, bob, m1))

	reply := send(t, bob, "ack")
	assert.Equal(t, "ack", recv(t, alice, reply))

	assert.Equal(t, "two", recv(t, bob, m2), "skipped key survives a ratchet step")
	assert.Empty(t, bob.Skipped)
}

func TestTamperLeavesStateIntact(t *testing.T) {
	alice, bob := newSession(t)
	m := send(t, alice, "secret")

	bad := sealed{m.h, append([]byte(nil), m.ct...)}
	bad.ct[len(bad.ct)-1] ^= 1
	_, err := bob.Receive(bad.h, bad.ct)
	require.Error(t, err)

	assert.Equal(t, "secret", recv(t, bob, m))
}

func TestStateSurvivesJSON(t *testing.T) {
	alice, bob := newSession(t)
	recv(t, bob, send(t, alice, "first"))

	data, err := json.Marshal(bob)
	require.NoError(t, err)
	var restored RatchetState
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, "after restart", recv(t, alice, send(t, &restored, "after restart")))
}
