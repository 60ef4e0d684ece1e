package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	// EphemeralKey is one X3DH initiation. Rows are write-once, a newer row
	// for the same ordered pair supersedes older ones.
	EphemeralKey struct {
		ID          int64     `json:"id"`
		SenderID    uuid.UUID `json:"sender_id"`
		RecipientID uuid.UUID `json:"recipient_id"`
		PublicKey   []byte    `json:"ephemeral_key"`
		PrekeyID    *uint32   `json:"prekey_id"`
		CreatedAt   time.Time `json:"created_at"`
	}

	SenderKeyBundle struct {
		IKPrivA []byte
		EKPrivA []byte

		IKPubB  []byte
		SPKPubB []byte
		OTKPubB []byte
	}

	ReceiverKeyBundle struct {
		IKPubA []byte
		EKPubA []byte

		IKPrivB  []byte
		SPKPrivB []byte
		OTKPrivB []byte
	}
)
