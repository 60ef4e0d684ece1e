// Package contact runs the relationship state machine between two users and
// tells the counterparty about every transition.
package contact

import (
	"context"
	"time"

	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/service"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	users    repository.UserRepository
	contacts repository.ContactRepository
	notifier service.Notifier
	now      func() time.Time
}

var _ service.ContactGate = (*Service)(nil)

func NewService(users repository.UserRepository, contacts repository.ContactRepository, notifier service.Notifier) *Service {
	return &Service{
		users:    users,
		contacts: contacts,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request opens or re-arms a pending request from requester to the user
// behind targetHandle.
func (s *Service) Request(ctx context.Context, requester uuid.UUID, targetHandle string) (*model.Contact, error) {
	from, err := s.users.GetByID(ctx, requester)
	if err != nil {
		return nil, err
	}
	target, err := s.users.GetByHandle(ctx, model.NormalizeHandle(targetHandle))
	if err != nil {
		return nil, err
	}

	c, err := s.contacts.UpdatePair(ctx, requester, target.ID, func(cur *model.Contact) (*model.Contact, error) {
		return model.Request(cur, requester, target.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	log.Info("contact requested",
		zap.Int64("request_id", c.ID),
		zap.String("from", from.Handle),
		zap.String("to", target.Handle),
	)
	s.notifier.Notify(target.ID, model.Event{
		Type: model.EventContactRequest,
		Data: model.ContactEvent{From: from.Handle, RequestID: c.ID},
	})
	return c, nil
}

// Respond accepts or rejects request id on behalf of caller, who must be its
// recipient.
func (s *Service) Respond(ctx context.Context, caller uuid.UUID, id int64, accept bool) (*model.Contact, error) {
	me, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return nil, err
	}

	c, err := s.contacts.UpdateByID(ctx, id, func(cur *model.Contact) (*model.Contact, error) {
		return model.Respond(cur, caller, accept, s.now())
	})
	if err != nil {
		return nil, err
	}

	log.Info("contact request answered",
		zap.Int64("request_id", c.ID),
		zap.String("by", me.Handle),
		zap.String("status", string(c.Status)),
	)
	s.notifier.Notify(c.RequesterID, model.Event{
		Type: model.EventContactRequestResponse,
		Data: model.ContactEvent{From: me.Handle, RequestID: c.ID, Status: c.Status},
	})
	return c, nil
}

// Remove deletes the accepted relationship between caller and targetHandle.
func (s *Service) Remove(ctx context.Context, caller uuid.UUID, targetHandle string) error {
	me, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return err
	}
	target, err := s.users.GetByHandle(ctx, model.NormalizeHandle(targetHandle))
	if err != nil {
		return err
	}

	_, err = s.contacts.UpdatePair(ctx, caller, target.ID, func(cur *model.Contact) (*model.Contact, error) {
		return model.Remove(cur, caller, s.now())
	})
	if err != nil {
		return err
	}

	log.Info("contact removed", zap.String("by", me.Handle), zap.String("peer", target.Handle))
	s.notifier.Notify(target.ID, model.Event{
		Type: model.EventContactRemoved,
		Data: model.ContactEvent{From: me.Handle},
	})
	return nil
}

func (s *Service) Accepted(ctx context.Context, a, b uuid.UUID) (bool, error) {
	c, err := s.contacts.Get(ctx, a, b)
	if err != nil {
		return false, err
	}
	return c != nil && c.Status == model.ContactAccepted, nil
}

// Contacts lists the accepted peers of user.
func (s *Service) Contacts(ctx context.Context, user uuid.UUID) ([]model.ContactView, error) {
	rows, err := s.contacts.ListByUser(ctx, user, model.ContactAccepted)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, user, rows)
}

// PendingRequests lists requests waiting for user's answer.
func (s *Service) PendingRequests(ctx context.Context, user uuid.UUID) ([]model.ContactView, error) {
	rows, err := s.contacts.ListByUser(ctx, user, model.ContactPending)
	if err != nil {
		return nil, err
	}

	incoming := rows[:0]
	for _, c := range rows {
		if c.RecipientID == user {
			incoming = append(incoming, c)
		}
	}
	return s.views(ctx, user, incoming)
}

func (s *Service) views(ctx context.Context, user uuid.UUID, rows []model.Contact) ([]model.ContactView, error) {
	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].Peer(user)
	}
	peers, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]model.ContactView, 0, len(rows))
	for i := range rows {
		peer, ok := peers[ids[i]]
		if !ok {
			log.Warn("contact peer missing", zap.Int64("request_id", rows[i].ID))
			continue
		}
		res = append(res, model.ContactView{
			RequestID: rows[i].ID,
			Peer:      peer.Profile(),
			Status:    rows[i].Status,
			Outgoing:  rows[i].RequesterID == user,
			UpdatedAt: rows[i].UpdatedAt,
		})
	}
	return res, nil
}
