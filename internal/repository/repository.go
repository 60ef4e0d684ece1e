// Package repository defines the storage contracts of the relay. Engines live
// in the memory, postgres and mongo subpackages and share one conformance
// suite in repotest.
//
// Every mutating method is atomic on its own: the read that decides a write
// and the write itself happen in one transaction or lock scope. Engines
// return apperr domain errors unchanged and classify everything else with
// apperr.Infrastructure.
package repository

import (
	"context"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type (
	UserRepository interface {
		// Create assigns ID and CreatedAt when unset. A duplicate handle
		// yields apperr.ErrHandleTaken.
		Create(ctx context.Context, u *model.User) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByHandle(ctx context.Context, handle string) (*model.User, error)
		GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error)
		UpdateSignedPrekey(ctx context.Context, id uuid.UUID, spk model.SignedPrekey) error
	}

	PrekeyRepository interface {
		// Allocate flips the lowest unused slot of owner to used and returns
		// it. It returns nil, nil when the pool is exhausted.
		Allocate(ctx context.Context, owner uuid.UUID) (*model.OneTimePrekey, error)
		// ClaimBundle reads the owner's identity and signed prekey and
		// allocates one prekey in the same transaction.
		ClaimBundle(ctx context.Context, owner uuid.UUID) (*model.PrekeyBundle, error)
		// Replenish overwrites the lowest used slot for each key in order and
		// appends a slot when none is left. The batch is one transaction.
		Replenish(ctx context.Context, owner uuid.UUID, keys []model.PrekeyUpload) (model.ReplenishResult, error)
		CountUnused(ctx context.Context, owner uuid.UUID) (int, error)
	}

	// ContactTransition receives the stored row (nil if the pair has none)
	// and returns the row to persist. An error aborts without writing.
	ContactTransition func(cur *model.Contact) (*model.Contact, error)

	ContactRepository interface {
		// Get returns the row of the unordered pair, or nil.
		Get(ctx context.Context, a, b uuid.UUID) (*model.Contact, error)
		UpdatePair(ctx context.Context, a, b uuid.UUID, fn ContactTransition) (*model.Contact, error)
		// UpdateByID passes nil to fn when no row has that id.
		UpdateByID(ctx context.Context, id int64, fn ContactTransition) (*model.Contact, error)
		ListByUser(ctx context.Context, user uuid.UUID, statuses ...model.ContactStatus) ([]model.Contact, error)
	}

	EphemeralRepository interface {
		Create(ctx context.Context, k *model.EphemeralKey) error
		// Latest returns the newest row from sender to recipient, or nil.
		Latest(ctx context.Context, sender, recipient uuid.UUID) (*model.EphemeralKey, error)
	}

	MessageRepository interface {
		// Create assigns a monotone ID and CreatedAt.
		Create(ctx context.Context, e *model.Envelope) error
		Get(ctx context.Context, id int64) (*model.Envelope, error)
		// MarkDelivered reports whether the flag changed.
		MarkDelivered(ctx context.Context, id int64) (bool, error)
		// MarkRead flags every unread envelope from sender to recipient as
		// read and delivered and returns how many changed.
		MarkRead(ctx context.Context, sender, recipient uuid.UUID) (int, error)
		// DrainUndelivered returns undelivered envelopes from sender to
		// recipient in id order and marks them delivered atomically.
		DrainUndelivered(ctx context.Context, recipient, sender uuid.UUID) ([]model.Envelope, error)
		// History pages the conversation of a and b, newest first. beforeID
		// of zero starts at the newest envelope.
		History(ctx context.Context, a, b uuid.UUID, beforeID int64, limit int) ([]model.Envelope, error)
		CountUndelivered(ctx context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error)
	}

	Store interface {
		Users() UserRepository
		Prekeys() PrekeyRepository
		Contacts() ContactRepository
		Ephemerals() EphemeralRepository
		Messages() MessageRepository

		// Migrate creates tables, collections and indexes.
		Migrate(ctx context.Context) error
		Close(ctx context.Context) error
	}
)
