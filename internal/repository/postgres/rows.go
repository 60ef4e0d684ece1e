package postgres

import (
	"time"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type (
	userRow struct {
		ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
		Handle          string    `gorm:"type:varchar(254);uniqueIndex;not null"`
		IdentityKey     []byte    `gorm:"not null"`
		SignedPrekeyID  uint32    `gorm:"not null"`
		SignedPrekey    []byte    `gorm:"not null"`
		SignedPrekeySig []byte    `gorm:"not null"`
		CreatedAt       time.Time `gorm:"not null;autoCreateTime:false"`
	}

	// prekeyRow is one pool slot. ID is the slot id that allocation and
	// reuse order by.
	prekeyRow struct {
		ID        int64     `gorm:"primaryKey;autoIncrement"`
		UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_prekeys_owner_used,priority:1"`
		KeyID     uint32    `gorm:"not null"`
		PublicKey []byte    `gorm:"not null"`
		Used      bool      `gorm:"not null;default:false;index:idx_prekeys_owner_used,priority:2"`
	}

	// contactRow keeps the unordered pair in (UserLo, UserHi) so the unique
	// index holds one row per pair regardless of direction.
	contactRow struct {
		ID          int64     `gorm:"primaryKey;autoIncrement"`
		UserLo      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_pair,priority:1"`
		UserHi      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_pair,priority:2"`
		RequesterID uuid.UUID `gorm:"type:uuid;not null;index"`
		RecipientID uuid.UUID `gorm:"type:uuid;not null;index"`
		Status      string    `gorm:"type:varchar(16);not null"`
		CreatedAt   time.Time `gorm:"not null;autoCreateTime:false"`
		UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false"`
	}

	ephemeralRow struct {
		ID          int64     `gorm:"primaryKey;autoIncrement"`
		SenderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_ephemeral_pair,priority:1"`
		RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_ephemeral_pair,priority:2"`
		PublicKey   []byte    `gorm:"not null"`
		PrekeyID    *uint32
		CreatedAt   time.Time `gorm:"not null;autoCreateTime:false"`
	}

	messageRow struct {
		ID          int64     `gorm:"primaryKey;autoIncrement"`
		SenderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_inbox,priority:2"`
		RecipientID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_inbox,priority:1"`
		Kind        string    `gorm:"type:varchar(16);not null"`
		Ciphertext  []byte    `gorm:"not null"`
		CreatedAt   time.Time `gorm:"not null;autoCreateTime:false"`
		Delivered   bool      `gorm:"not null;default:false;index:idx_messages_inbox,priority:3"`
		Read        bool      `gorm:"not null;default:false"`
	}
)

func (userRow) TableName() string      { return "users" }
func (prekeyRow) TableName() string    { return "prekeys" }
func (contactRow) TableName() string   { return "contacts" }
func (ephemeralRow) TableName() string { return "ephemeral_keys" }
func (messageRow) TableName() string   { return "messages" }

func toUserRow(u *model.User) *userRow {
	return &userRow{
		ID:              u.ID,
		Handle:          u.Handle,
		IdentityKey:     u.IdentityKey,
		SignedPrekeyID:  u.SignedPrekey.KeyID,
		SignedPrekey:    u.SignedPrekey.PublicKey,
		SignedPrekeySig: u.SignedPrekey.Signature,
		CreatedAt:       u.CreatedAt,
	}
}

func (r *userRow) model() *model.User {
	return &model.User{
		ID:          r.ID,
		Handle:      r.Handle,
		IdentityKey: r.IdentityKey,
		SignedPrekey: model.SignedPrekey{
			KeyID:     r.SignedPrekeyID,
			PublicKey: r.SignedPrekey,
			Signature: r.SignedPrekeySig,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (r *prekeyRow) model() *model.OneTimePrekey {
	return &model.OneTimePrekey{
		Slot:      r.ID,
		Owner:     r.UserID,
		KeyID:     r.KeyID,
		PublicKey: r.PublicKey,
		Used:      r.Used,
	}
}

func toContactRow(c *model.Contact) *contactRow {
	lo, hi := model.PairKey(c.RequesterID, c.RecipientID)
	return &contactRow{
		ID:          c.ID,
		UserLo:      lo,
		UserHi:      hi,
		RequesterID: c.RequesterID,
		RecipientID: c.RecipientID,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (r *contactRow) model() *model.Contact {
	return &model.Contact{
		ID:          r.ID,
		RequesterID: r.RequesterID,
		RecipientID: r.RecipientID,
		Status:      model.ContactStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r *ephemeralRow) model() *model.EphemeralKey {
	return &model.EphemeralKey{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		PublicKey:   r.PublicKey,
		PrekeyID:    r.PrekeyID,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *messageRow) model() model.Envelope {
	return model.Envelope{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Kind:        model.Kind(r.Kind),
		Ciphertext:  r.Ciphertext,
		CreatedAt:   r.CreatedAt,
		Delivered:   r.Delivered,
		Read:        r.Read,
	}
}
