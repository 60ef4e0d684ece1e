// Package keyexchange serves the X3DH bootstrap: bundle fetch, ephemeral key
// hand-off and the live ratchet key relay.
package keyexchange

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

type Service struct {
	prekeys    repository.PrekeyRepository
	ephemerals repository.EphemeralRepository
	notifier   service.Notifier
	resolver   service.Resolver
}

func NewService(
	users repository.UserRepository,
	prekeys repository.PrekeyRepository,
	ephemerals repository.EphemeralRepository,
	gate service.ContactGate,
	notifier service.Notifier,
	requireContact bool,
) *Service {
	return &Service{
		prekeys:    prekeys,
		ephemerals: ephemerals,
		notifier:   notifier,
		resolver: service.Resolver{
			Users:          users,
			Gate:           gate,
			RequireContact: requireContact,
		},
	}
}

// FetchBundle returns the published keys of targetHandle and consumes one of
// their one-time prekeys. OneTimePrekey is nil once the pool is empty.
func (s *Service) FetchBundle(ctx context.Context, requester uuid.UUID, targetHandle string) (*model.PrekeyBundle, error) {
	_, peer, err := s.resolver.Gated(ctx, requester, targetHandle)
	if err != nil {
		return nil, err
	}

	b, err := s.prekeys.ClaimBundle(ctx, peer.ID)
	if err != nil {
		return nil, err
	}
	if b.OneTimePrekey == nil {
		log.Info("bundle served without one-time prekey",
			zap.String("owner", peer.Handle),
			zap.String("requester", requester.String()),
		)
	}
	return b, nil
}

// SendEphemeral stores the initiator's ephemeral key for recipientHandle and
// pushes it when the recipient is online. The bool reports the push.
func (s *Service) SendEphemeral(ctx context.Context, sender uuid.UUID, recipientHandle string, key []byte, prekeyID *uint32) (*model.EphemeralKey, bool, error) {
	if !model.ValidPublicKey(key) {
		return nil, false, apperr.ErrInvalidKey
	}
	me, peer, err := s.resolver.Gated(ctx, sender, recipientHandle)
	if err != nil {
		return nil, false, err
	}

	k := &model.EphemeralKey{
		SenderID:    me.ID,
		RecipientID: peer.ID,
		PublicKey:   key,
		PrekeyID:    prekeyID,
	}
	if err := s.ephemerals.Create(ctx, k); err != nil {
		return nil, false, err
	}

	live := s.notifier.Notify(peer.ID, model.Event{
		Type: model.EventEphemeralKey,
		Data: model.EphemeralKeyEvent{
			ID:           k.ID,
			From:         me.Handle,
			EphemeralKey: k.PublicKey,
			PrekeyID:     k.PrekeyID,
		},
	})
	return k, live, nil
}

// RetrieveEphemeral returns the newest ephemeral key senderHandle sent to
// recipient.
func (s *Service) RetrieveEphemeral(ctx context.Context, recipient uuid.UUID, senderHandle string) (*model.EphemeralKey, error) {
	me, peer, err := s.resolver.Gated(ctx, recipient, senderHandle)
	if err != nil {
		return nil, err
	}

	k, err := s.ephemerals.Latest(ctx, peer.ID, me.ID)
	if err != nil {
		return nil, err
	}
	if k == nil {
		return nil, apperr.ErrEphemeralNotFound
	}
	return k, nil
}

// RelayRatchetKey forwards a ratchet public key to an online recipient. It is
// not stored: an offline peer picks up the sender's ratchet key from the
// header of the next persisted message instead.
func (s *Service) RelayRatchetKey(ctx context.Context, sender uuid.UUID, recipientHandle string, key []byte) (bool, error) {
	if !model.ValidPublicKey(key) {
		return false, apperr.ErrInvalidKey
	}
	me, peer, err := s.resolver.Gated(ctx, sender, recipientHandle)
	if err != nil {
		return false, err
	}

	live := s.notifier.Notify(peer.ID, model.Event{
		Type: model.EventRatchetKey,
		Data: model.RatchetKeyEvent{From: me.Handle, RatchetKey: key},
	})
	if !live {
		log.Debug("ratchet key dropped", zap.String("from", me.Handle), zap.String("to", peer.Handle))
	}
	return live, nil
}
