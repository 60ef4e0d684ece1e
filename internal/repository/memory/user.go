package memory

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type userRepo Store

func cloneUser(u *model.User) *model.User {
	c := *u
	c.IdentityKey = cloneBytes(u.IdentityKey)
	c.SignedPrekey.PublicKey = cloneBytes(u.SignedPrekey.PublicKey)
	c.SignedPrekey.Signature = cloneBytes(u.SignedPrekey.Signature)
	return &c
}

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[u.Handle]; ok {
		return apperr.ErrHandleTaken
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}

	s.users[u.ID] = cloneUser(u)
	s.handles[u.Handle] = u.ID
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *userRepo) GetByHandle(_ context.Context, handle string) (*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.handles[handle]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (r *userRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[uuid.UUID]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			res[id] = cloneUser(u)
		}
	}
	return res, nil
}

func (r *userRepo) UpdateSignedPrekey(_ context.Context, id uuid.UUID, spk model.SignedPrekey) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	u.SignedPrekey = model.SignedPrekey{
		KeyID:     spk.KeyID,
		PublicKey: cloneBytes(spk.PublicKey),
		Signature: cloneBytes(spk.Signature),
	}
	return nil
}
