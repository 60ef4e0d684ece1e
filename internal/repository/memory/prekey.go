package memory

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type prekeyRepo Store

func clonePrekey(k *model.OneTimePrekey) *model.OneTimePrekey {
	c := *k
	c.PublicKey = cloneBytes(k.PublicKey)
	return &c
}

// allocate expects s.mu held. Slots are appended in increasing order, so the
// first unused one is the lowest.
func (s *Store) allocate(owner uuid.UUID) *model.OneTimePrekey {
	for _, k := range s.prekeys[owner] {
		if !k.Used {
			k.Used = true
			return clonePrekey(k)
		}
	}
	return nil
}

func (r *prekeyRepo) Allocate(_ context.Context, owner uuid.UUID) (*model.OneTimePrekey, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allocate(owner), nil
}

func (r *prekeyRepo) ClaimBundle(_ context.Context, owner uuid.UUID) (*model.PrekeyBundle, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[owner]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	u = cloneUser(u)

	return &model.PrekeyBundle{
		UserID:        u.ID,
		Handle:        u.Handle,
		IdentityKey:   u.IdentityKey,
		SignedPrekey:  u.SignedPrekey,
		OneTimePrekey: s.allocate(owner),
	}, nil
}

func (r *prekeyRepo) Replenish(_ context.Context, owner uuid.UUID, keys []model.PrekeyUpload) (model.ReplenishResult, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res model.ReplenishResult
	pool := s.prekeys[owner]
	for _, k := range keys {
		reused := false
		for _, slot := range pool {
			if slot.Used {
				slot.KeyID = k.KeyID
				slot.PublicKey = cloneBytes(k.PublicKey)
				slot.Used = false
				reused = true
				break
			}
		}
		if reused {
			res.Reused++
			continue
		}

		s.slotSeq++
		pool = append(pool, &model.OneTimePrekey{
			Slot:      s.slotSeq,
			Owner:     owner,
			KeyID:     k.KeyID,
			PublicKey: cloneBytes(k.PublicKey),
		})
		res.Appended++
	}
	s.prekeys[owner] = pool
	return res, nil
}

func (r *prekeyRepo) CountUnused(_ context.Context, owner uuid.UUID) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, k := range s.prekeys[owner] {
		if !k.Used {
			n++
		}
	}
	return n, nil
}
