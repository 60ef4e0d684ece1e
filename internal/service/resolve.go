package service

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
)

// Resolver loads both sides of a peer-to-peer operation.
type Resolver struct {
	Users repository.UserRepository
	Gate  ContactGate
	// RequireContact makes Gated fail with apperr.ErrNotContacts unless the
	// pair holds an accepted relationship.
	RequireContact bool
}

// Pair returns the caller and the user behind handle.
func (r Resolver) Pair(ctx context.Context, caller uuid.UUID, handle string) (*model.User, *model.User, error) {
	me, err := r.Users.GetByID(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	peer, err := r.Users.GetByHandle(ctx, model.NormalizeHandle(handle))
	if err != nil {
		return nil, nil, err
	}
	return me, peer, nil
}

// Gated is Pair followed by the contact check.
func (r Resolver) Gated(ctx context.Context, caller uuid.UUID, handle string) (*model.User, *model.User, error) {
	me, peer, err := r.Pair(ctx, caller, handle)
	if err != nil || !r.RequireContact {
		return me, peer, err
	}

	ok, err := r.Gate.Accepted(ctx, me.ID, peer.ID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperr.ErrNotContacts
	}
	return me, peer, nil
}
