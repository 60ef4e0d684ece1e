// Package relay stores ciphertext envelopes and forwards them to present
// recipients. Storage always comes first; a push is an optimisation that
// never decides whether a message exists.
package relay

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/service"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type Options struct {
	RequireContact bool
	MaxCiphertext  int
}

type Service struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	notifier service.Notifier
	hints    service.InboxHints
	resolver service.Resolver

	maxCiphertext int
}

// NewService builds the relay. hints may be nil, in which case the pending
// summary is computed from storage.
func NewService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	gate service.ContactGate,
	notifier service.Notifier,
	hints service.InboxHints,
	opts Options,
) *Service {
	return &Service{
		users:    users,
		messages: messages,
		notifier: notifier,
		hints:    hints,
		resolver: service.Resolver{
			Users:          users,
			Gate:           gate,
			RequireContact: opts.RequireContact,
		},
		maxCiphertext: opts.MaxCiphertext,
	}
}

// Send persists one envelope from sender to recipientHandle and pushes it if
// the recipient is online.
func (s *Service) Send(ctx context.Context, sender uuid.UUID, recipientHandle string, kind model.Kind, ciphertext []byte) (model.SendResult, error) {
	if !kind.Valid() {
		return model.SendResult{}, apperr.ErrInvalidKind
	}
	if len(ciphertext) == 0 {
		return model.SendResult{}, apperr.ErrEmptyCiphertext
	}
	if s.maxCiphertext > 0 && len(ciphertext) > s.maxCiphertext {
		return model.SendResult{}, apperr.ErrCiphertextTooLarge
	}

	me, peer, err := s.resolver.Gated(ctx, sender, recipientHandle)
	if err != nil {
		return model.SendResult{}, err
	}

	e := &model.Envelope{
		SenderID:    me.ID,
		RecipientID: peer.ID,
		Kind:        kind,
		Ciphertext:  ciphertext,
	}
	if err := s.messages.Create(ctx, e); err != nil {
		return model.SendResult{}, err
	}

	live := s.notifier.Notify(peer.ID, model.Event{
		Type: model.EventMessage,
		Data: model.NewMessageEvent(e, me.Handle),
	})
	// A live push is not a delivery, so the hint counts it until the
	// recipient acknowledges or drains.
	if s.hints != nil {
		if err := s.hints.Bump(ctx, peer.ID, me.ID); err != nil {
			log.Warn("inbox hint bump failed", zap.Int64("message_id", e.ID), zap.Error(err))
		}
	}

	log.Debug("message stored",
		zap.Int64("message_id", e.ID),
		zap.String("from", me.Handle),
		zap.String("to", peer.Handle),
		zap.Bool("live", live),
	)
	return model.SendResult{ID: e.ID, Live: live, CreatedAt: e.CreatedAt}, nil
}

// AcknowledgeDelivered marks message id delivered. Repeated calls succeed
// without notifying the sender again.
func (s *Service) AcknowledgeDelivered(ctx context.Context, caller uuid.UUID, id int64) error {
	e, err := s.messages.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.RecipientID != caller {
		return apperr.ErrNotMessageRecipient
	}

	changed, err := s.messages.MarkDelivered(ctx, id)
	if err != nil || !changed {
		return err
	}
	if s.hints != nil {
		if err := s.hints.Drop(ctx, caller, e.SenderID); err != nil {
			log.Warn("inbox hint drop failed", zap.Int64("message_id", id), zap.Error(err))
		}
	}

	me, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return err
	}
	s.notifier.Notify(e.SenderID, model.Event{
		Type: model.EventMessageDelivered,
		Data: model.DeliveredEvent{ID: id, By: me.Handle},
	})
	return nil
}

// AcknowledgeRead marks everything senderHandle sent to reader as read and
// returns how many envelopes changed.
func (s *Service) AcknowledgeRead(ctx context.Context, reader uuid.UUID, senderHandle string) (int, error) {
	me, peer, err := s.resolver.Pair(ctx, reader, senderHandle)
	if err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, peer.ID, me.ID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	s.clearHint(ctx, me.ID, peer.ID)
	s.notifier.Notify(peer.ID, model.Event{
		Type: model.EventMessagesRead,
		Data: model.ReadEvent{By: me.Handle, Count: n},
	})
	return n, nil
}

// DrainUndelivered hands owner every envelope from counterpartyHandle that
// has not been acknowledged, oldest first, and marks them delivered. A
// client that loses the response sees none of them again, so clients drain
// only once their session is ready and dedupe by id.
func (s *Service) DrainUndelivered(ctx context.Context, owner uuid.UUID, counterpartyHandle string) ([]model.Envelope, error) {
	me, peer, err := s.resolver.Pair(ctx, owner, counterpartyHandle)
	if err != nil {
		return nil, err
	}

	res, err := s.messages.DrainUndelivered(ctx, me.ID, peer.ID)
	if err != nil {
		return nil, err
	}
	s.clearHint(ctx, me.ID, peer.ID)
	return res, nil
}

// History pages the conversation between user and counterpartyHandle, newest
// first.
func (s *Service) History(ctx context.Context, user uuid.UUID, counterpartyHandle string, beforeID int64, limit int) ([]model.Envelope, error) {
	if beforeID < 0 {
		return nil, apperr.InvalidArgument("before must not be negative")
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	me, peer, err := s.resolver.Pair(ctx, user, counterpartyHandle)
	if err != nil {
		return nil, err
	}
	return s.messages.History(ctx, me.ID, peer.ID, beforeID, limit)
}

// PendingSummary returns undelivered counts for owner keyed by sender handle.
func (s *Service) PendingSummary(ctx context.Context, owner uuid.UUID) (map[string]int64, error) {
	counts, err := s.pendingCounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return map[string]int64{}, nil
	}

	ids := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	senders, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make(map[string]int64, len(counts))
	for id, n := range counts {
		if u, ok := senders[id]; ok && n > 0 {
			res[u.Handle] = n
		}
	}
	return res, nil
}

func (s *Service) pendingCounts(ctx context.Context, owner uuid.UUID) (map[uuid.UUID]int64, error) {
	if s.hints != nil {
		counts, err := s.hints.Pending(ctx, owner)
		if err == nil {
			return counts, nil
		}
		log.Warn("inbox hints unavailable, counting from storage", zap.Error(err))
	}
	return s.messages.CountUndelivered(ctx, owner)
}

func (s *Service) clearHint(ctx context.Context, recipient, sender uuid.UUID) {
	if s.hints == nil {
		return
	}
	if err := s.hints.Clear(ctx, recipient, sender); err != nil {
		log.Warn("inbox hint clear failed", zap.Error(err))
	}
}
