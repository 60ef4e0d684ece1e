package memory

import (
	"context"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

type ephemeralRepo Store

func cloneEphemeral(k *model.EphemeralKey) *model.EphemeralKey {
	c := *k
	c.PublicKey = cloneBytes(k.PublicKey)
	if k.PrekeyID != nil {
		id := *k.PrekeyID
		c.PrekeyID = &id
	}
	return &c
}

func (r *ephemeralRepo) Create(_ context.Context, k *model.EphemeralKey) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ephemeralSeq++
	k.ID = s.ephemeralSeq
	k.CreatedAt = s.now()
	s.ephemera = append(s.ephemera, cloneEphemeral(k))
	return nil
}

func (r *ephemeralRepo) Latest(_ context.Context, sender, recipient uuid.UUID) (*model.EphemeralKey, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.ephemera) - 1; i >= 0; i-- {
		k := s.ephemera[i]
		if k.SenderID == sender && k.RecipientID == recipient {
			return cloneEphemeral(k), nil
		}
	}
	return nil, nil
}
