package dh

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// NewX25519KeyPair generates a fresh key pair.
func NewX25519KeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, errors.Wrap(err, "generate private key")
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

func PublicKey(priv [32]byte) [32]byte {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return pub
}

// X25519SharedSecret computes priv * pub. Low-order points are rejected.
func X25519SharedSecret(priv, pub [32]byte) ([]byte, error) {
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, errors.Wrap(err, "x25519")
	}
	return out, nil
}

// Key32 converts b to a fixed-size key, failing on any other length.
func Key32(b []byte) ([32]byte, error) {
	var k [32]byte
	if len(b) != curve25519.PointSize {
		return k, errors.Errorf("key has %d bytes, want %d", len(b), curve25519.PointSize)
	}
	copy(k[:], b)
	return k, nil
}
