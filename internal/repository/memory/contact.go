package memory

import (
	"context"
	"slices"

	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
)

type contactRepo Store

func cloneContact(c *model.Contact) *model.Contact {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (r *contactRepo) Get(_ context.Context, a, b uuid.UUID) (*model.Contact, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneContact(s.contacts[pairOf(a, b)]), nil
}

// apply expects s.mu held.
func (s *Store) apply(cur *model.Contact, fn repository.ContactTransition) (*model.Contact, error) {
	next, err := fn(cloneContact(cur))
	if err != nil {
		return nil, err
	}

	if next.ID == 0 {
		s.contactSeq++
		next.ID = s.contactSeq
	}
	p := pairOf(next.RequesterID, next.RecipientID)
	s.contacts[p] = cloneContact(next)
	s.byID[next.ID] = p
	return next, nil
}

func (r *contactRepo) UpdatePair(_ context.Context, a, b uuid.UUID, fn repository.ContactTransition) (*model.Contact, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.apply(s.contacts[pairOf(a, b)], fn)
}

func (r *contactRepo) UpdateByID(_ context.Context, id int64, fn repository.ContactTransition) (*model.Contact, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *model.Contact
	if p, ok := s.byID[id]; ok {
		cur = s.contacts[p]
	}
	return s.apply(cur, fn)
}

func (r *contactRepo) ListByUser(_ context.Context, user uuid.UUID, statuses ...model.ContactStatus) ([]model.Contact, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []model.Contact
	for _, c := range s.contacts {
		if !c.Involves(user) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, c.Status) {
			continue
		}
		res = append(res, *c)
	}
	slices.SortFunc(res, func(a, b model.Contact) int { return int(a.ID - b.ID) })
	return res, nil
}
