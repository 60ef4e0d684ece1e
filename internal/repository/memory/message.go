package memory

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

// messageRepo keeps envelopes in a slice indexed by ID-1.
type messageRepo Store

func cloneEnvelope(e *model.Envelope) model.Envelope {
	c := *e
	c.Ciphertext = cloneBytes(e.Ciphertext)
	return c
}

func (r *messageRepo) Create(_ context.Context, e *model.Envelope) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = int64(len(s.messages) + 1)
	e.CreatedAt = s.now()
	e.Delivered, e.Read = false, false

	c := cloneEnvelope(e)
	s.messages = append(s.messages, &c)
	return nil
}

func (s *Store) message(id int64) *model.Envelope {
	if id <= 0 || id > int64(len(s.messages)) {
		return nil
	}
	return s.messages[id-1]
}

func (r *messageRepo) Get(_ context.Context, id int64) (*model.Envelope, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.message(id)
	if e == nil {
		return nil, apperr.ErrMessageNotFound
	}
	c := cloneEnvelope(e)
	return &c, nil
}

func (r *messageRepo) MarkDelivered(_ context.Context, id int64) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.message(id)
	if e == nil {
		return false, apperr.ErrMessageNotFound
	}
	if e.Delivered {
		return false, nil
	}
	e.Delivered = true
	return true, nil
}

func (r *messageRepo) MarkRead(_ context.Context, sender, recipient uuid.UUID) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.messages {
		if e.SenderID == sender && e.RecipientID == recipient && !e.Read {
			e.Read = true
			e.Delivered = true
			n++
		}
	}
	return n, nil
}

func (r *messageRepo) DrainUndelivered(_ context.Context, recipient, sender uuid.UUID) ([]model.Envelope, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []model.Envelope
	for _, e := range s.messages {
		if e.SenderID == sender && e.RecipientID == recipient && !e.Delivered {
			e.Delivered = true
			res = append(res, cloneEnvelope(e))
		}
	}
	return res, nil
}

func (r *messageRepo) History(_ context.Context, a, b uuid.UUID, beforeID int64, limit int) ([]model.Envelope, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []model.Envelope
	for i := len(s.messages) - 1; i >= 0 && len(res) < limit; i-- {
		e := s.messages[i]
		if beforeID > 0 && e.ID >= beforeID {
			continue
		}
		if (e.SenderID == a && e.RecipientID == b) || (e.SenderID == b && e.RecipientID == a) {
			res = append(res, cloneEnvelope(e))
		}
	}
	return res, nil
}

func (r *messageRepo) CountUndelivered(_ context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[uuid.UUID]int64)
	for _, e := range s.messages {
		if e.RecipientID == recipient && !e.Delivered {
			res[e.SenderID]++
		}
	}
	return res, nil
}
