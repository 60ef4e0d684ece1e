package model

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/curve25519"
)

// MaxIdentityKeyLen bounds the opaque identity key. Clients may publish a
// DH key concatenated with a signing key.
const MaxIdentityKeyLen = 128

type (
	SignedPrekey struct {
		KeyID     uint32 `json:"id"`
		PublicKey []byte `json:"key"`
		Signature []byte `json:"signature"`
	}

	OneTimePrekey struct {
		Slot      int64     `json:"-"`
		Owner     uuid.UUID `json:"-"`
		KeyID     uint32    `json:"id"`
		PublicKey []byte    `json:"key"`
		Used      bool      `json:"-"`
	}

	PrekeyUpload struct {
		KeyID     uint32 `json:"id"`
		PublicKey []byte `json:"key"`
	}

	// PrekeyBundle is what an initiator needs to run X3DH against UserID.
	// OneTimePrekey is nil when the pool was exhausted.
	PrekeyBundle struct {
		UserID        uuid.UUID      `json:"user_id"`
		Handle        string         `json:"handle"`
		IdentityKey   []byte         `json:"identity_key"`
		SignedPrekey  SignedPrekey   `json:"signed_prekey"`
		OneTimePrekey *OneTimePrekey `json:"one_time_prekey"`
	}

	ReplenishResult struct {
		Reused   int `json:"reused"`
		Appended int `json:"appended"`
	}
)

func ValidPublicKey(k []byte) bool {
	return len(k) == curve25519.PointSize
}

func (s SignedPrekey) Valid() bool {
	return ValidPublicKey(s.PublicKey) && len(s.Signature) > 0
}
