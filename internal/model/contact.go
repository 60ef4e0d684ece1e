package model

import (
	"time"

	"e2e_relay/internal/apperr"

	"github.com/google/uuid"
)

type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactRejected ContactStatus = "rejected"
	ContactDeleted  ContactStatus = "deleted"
)

// Contact is the single relationship row of an unordered user pair.
type Contact struct {
	ID          int64         `json:"id"`
	RequesterID uuid.UUID     `json:"requester_id"`
	RecipientID uuid.UUID     `json:"recipient_id"`
	Status      ContactStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ContactView is a contact row seen from one side, with the peer resolved.
type ContactView struct {
	RequestID int64         `json:"request_id"`
	Peer      Profile       `json:"peer"`
	Status    ContactStatus `json:"status"`
	Outgoing  bool          `json:"outgoing"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PairKey orders two ids so that (a, b) and (b, a) map to the same key.
func PairKey(a, b uuid.UUID) (lo, hi uuid.UUID) {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return a, b
			}
			return b, a
		}
	}
	return a, b
}

// Peer returns the other party of the row.
func (c *Contact) Peer(self uuid.UUID) uuid.UUID {
	if c.RequesterID == self {
		return c.RecipientID
	}
	return c.RequesterID
}

func (c *Contact) Involves(id uuid.UUID) bool {
	return c.RequesterID == id || c.RecipientID == id
}

// The transition functions below take the currently stored row (nil when the
// pair has none) and return the row to write. They never touch storage.

// Request moves the pair of (requester, recipient) to pending.
func Request(cur *Contact, requester, recipient uuid.UUID, now time.Time) (*Contact, error) {
	if requester == recipient {
		return nil, apperr.ErrSelfContact
	}

	if cur == nil {
		return &Contact{
			RequesterID: requester,
			RecipientID: recipient,
			Status:      ContactPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}

	next := *cur
	switch cur.Status {
	case ContactPending:
		if cur.RequesterID != requester {
			return nil, apperr.ErrReversePending
		}
		next.UpdatedAt = now
	case ContactAccepted:
		return nil, apperr.ErrContactExists
	case ContactRejected, ContactDeleted:
		next.RequesterID = requester
		next.RecipientID = recipient
		next.Status = ContactPending
		next.UpdatedAt = now
	}
	return &next, nil
}

// Respond settles a pending row. Only its recipient may respond.
func Respond(cur *Contact, caller uuid.UUID, accept bool, now time.Time) (*Contact, error) {
	if cur == nil || cur.Status != ContactPending {
		return nil, apperr.ErrRequestNotFound
	}
	if cur.RecipientID != caller {
		return nil, apperr.ErrNotRecipient
	}

	next := *cur
	next.Status = ContactRejected
	if accept {
		next.Status = ContactAccepted
	}
	next.UpdatedAt = now
	return &next, nil
}

// Remove deletes an accepted row on behalf of either party.
func Remove(cur *Contact, caller uuid.UUID, now time.Time) (*Contact, error) {
	if cur == nil || cur.Status != ContactAccepted || !cur.Involves(caller) {
		return nil, apperr.ErrContactNotFound
	}

	next := *cur
	next.Status = ContactDeleted
	next.UpdatedAt = now
	return &next, nil
}
