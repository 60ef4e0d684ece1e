package dh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedSecretAgrees(t *testing.T) {
	aPriv, aPub, err := NewX25519KeyPair()
	require.NoError(t, err)
	bPriv, bPub, err := NewX25519KeyPair()
	require.NoError(t, err)

	ab, err := X25519SharedSecret(aPriv, bPub)
	require.NoError(t, err)
	ba, err := X25519SharedSecret(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
	assert.Equal(t, aPub, PublicKey(aPriv))

	_, err = X25519SharedSecret(aPriv, [32]byte{})
	assert.Error(t, err, "low-order point")

	_, err = Key32([]byte{1, 2})
	assert.Error(t, err)
}
