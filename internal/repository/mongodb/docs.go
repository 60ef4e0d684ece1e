package mongodb

import (
	"time"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type (
	signedPrekeyDoc struct {
		KeyID     uint32 `bson:"key_id"`
		PublicKey []byte `bson:"public_key"`
		Signature []byte `bson:"signature"`
	}

	userDoc struct {
		ID           string          `bson:"_id"`
		Handle       string          `bson:"handle"`
		IdentityKey  []byte          `bson:"identity_key"`
		SignedPrekey signedPrekeyDoc `bson:"signed_prekey"`
		CreatedAt    time.Time       `bson:"created_at"`
	}

	prekeyDoc struct {
		Slot      int64  `bson:"_id"`
		UserID    string `bson:"user_id"`
		KeyID     uint32 `bson:"key_id"`
		PublicKey []byte `bson:"public_key"`
		Used      bool   `bson:"used"`
	}

	contactDoc struct {
		ID          int64     `bson:"_id"`
		UserLo      string    `bson:"user_lo"`
		UserHi      string    `bson:"user_hi"`
		RequesterID string    `bson:"requester_id"`
		RecipientID string    `bson:"recipient_id"`
		Status      string    `bson:"status"`
		Version     int64     `bson:"version"`
		CreatedAt   time.Time `bson:"created_at"`
		UpdatedAt   time.Time `bson:"updated_at"`
	}

	ephemeralDoc struct {
		ID          int64     `bson:"_id"`
		SenderID    string    `bson:"sender_id"`
		RecipientID string    `bson:"recipient_id"`
		PublicKey   []byte    `bson:"public_key"`
		PrekeyID    *uint32   `bson:"prekey_id,omitempty"`
		CreatedAt   time.Time `bson:"created_at"`
	}

	messageDoc struct {
		ID          int64     `bson:"_id"`
		SenderID    string    `bson:"sender_id"`
		RecipientID string    `bson:"recipient_id"`
		Kind        string    `bson:"kind"`
		Ciphertext  []byte    `bson:"ciphertext"`
		CreatedAt   time.Time `bson:"created_at"`
		Delivered   bool      `bson:"delivered"`
		Read        bool      `bson:"read"`
	}
)

// parseID maps a stored id back to a uuid. Documents are only written by this
// package, so a malformed id yields uuid.Nil rather than an error.
func parseID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func (d *userDoc) model() *model.User {
	return &model.User{
		ID:          parseID(d.ID),
		Handle:      d.Handle,
		IdentityKey: d.IdentityKey,
		SignedPrekey: model.SignedPrekey{
			KeyID:     d.SignedPrekey.KeyID,
			PublicKey: d.SignedPrekey.PublicKey,
			Signature: d.SignedPrekey.Signature,
		},
		CreatedAt: d.CreatedAt,
	}
}

func (d *prekeyDoc) model() *model.OneTimePrekey {
	return &model.OneTimePrekey{
		Slot:      d.Slot,
		Owner:     parseID(d.UserID),
		KeyID:     d.KeyID,
		PublicKey: d.PublicKey,
		Used:      d.Used,
	}
}

func toContactDoc(c *model.Contact, version int64) *contactDoc {
	lo, hi := model.PairKey(c.RequesterID, c.RecipientID)
	return &contactDoc{
		ID:          c.ID,
		UserLo:      lo.String(),
		UserHi:      hi.String(),
		RequesterID: c.RequesterID.String(),
		RecipientID: c.RecipientID.String(),
		Status:      string(c.Status),
		Version:     version,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (d *contactDoc) model() *model.Contact {
	return &model.Contact{
		ID:          d.ID,
		RequesterID: parseID(d.RequesterID),
		RecipientID: parseID(d.RecipientID),
		Status:      model.ContactStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d *ephemeralDoc) model() *model.EphemeralKey {
	return &model.EphemeralKey{
		ID:          d.ID,
		SenderID:    parseID(d.SenderID),
		RecipientID: parseID(d.RecipientID),
		PublicKey:   d.PublicKey,
		PrekeyID:    d.PrekeyID,
		CreatedAt:   d.CreatedAt,
	}
}

func (d *messageDoc) model() model.Envelope {
	return model.Envelope{
		ID:          d.ID,
		SenderID:    parseID(d.SenderID),
		RecipientID: parseID(d.RecipientID),
		Kind:        model.Kind(d.Kind),
		Ciphertext:  d.Ciphertext,
		CreatedAt:   d.CreatedAt,
		Delivered:   d.Delivered,
		Read:        d.Read,
	}
}
