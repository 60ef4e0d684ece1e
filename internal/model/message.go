package model

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText      Kind = "text"
	KindHandshake Kind = "handshake"
)

func (k Kind) Valid() bool {
	return k == KindText || k == KindHandshake
}

type (
	// Envelope is a persisted ciphertext. Delivered and Read only move from
	// false to true.
	Envelope struct {
		ID          int64     `json:"id"`
		SenderID    uuid.UUID `json:"sender_id"`
		RecipientID uuid.UUID `json:"recipient_id"`
		Kind        Kind      `json:"kind"`
		Ciphertext  []byte    `json:"ciphertext"`
		CreatedAt   time.Time `json:"created_at"`
		Delivered   bool      `json:"delivered"`
		Read        bool      `json:"read"`
	}

	SendResult struct {
		ID        int64     `json:"id"`
		Live      bool      `json:"live"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Header travels inside the client ciphertext blob. The server never
	// parses it.
	Header struct {
		Pub    [32]byte `json:"pub"`
		MsgNum uint32   `json:"n"`
		Prev   uint32   `json:"pn"`
	}
)
