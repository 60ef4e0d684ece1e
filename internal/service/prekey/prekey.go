// Package prekey owns the one-time prekey pools.
package prekey

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	repo     repository.PrekeyRepository
	maxBatch int
}

func NewService(repo repository.PrekeyRepository, maxBatch int) *Service {
	return &Service{repo: repo, maxBatch: maxBatch}
}

// Allocate consumes one prekey of owner. A nil key with a nil error means the
// pool is exhausted and the handshake proceeds without a one-time key.
func (s *Service) Allocate(ctx context.Context, owner uuid.UUID) (*model.OneTimePrekey, error) {
	k, err := s.repo.Allocate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if k == nil {
		log.Info("prekey pool exhausted", zap.String("owner", owner.String()))
	}
	return k, nil
}

// Replenish validates the whole batch before writing any of it. Retrying the
// same batch after an ambiguous failure may store duplicate key ids; clients
// that retry must pick fresh ids.
func (s *Service) Replenish(ctx context.Context, owner uuid.UUID, keys []model.PrekeyUpload) (model.ReplenishResult, error) {
	if err := s.validate(keys); err != nil {
		return model.ReplenishResult{}, err
	}

	res, err := s.repo.Replenish(ctx, owner, keys)
	if err != nil {
		return model.ReplenishResult{}, err
	}

	log.Debug("prekeys replenished",
		zap.String("owner", owner.String()),
		zap.Int("reused", res.Reused),
		zap.Int("appended", res.Appended),
	)
	return res, nil
}

func (s *Service) CountUnused(ctx context.Context, owner uuid.UUID) (int, error) {
	return s.repo.CountUnused(ctx, owner)
}

func (s *Service) validate(keys []model.PrekeyUpload) error {
	if len(keys) == 0 {
		return apperr.ErrEmptyBatch
	}
	if len(keys) > s.maxBatch {
		return apperr.ErrBatchTooLarge
	}

	seen := make(map[uint32]struct{}, len(keys))
	for _, k := range keys {
		if !model.ValidPublicKey(k.PublicKey) {
			return apperr.ErrInvalidKey
		}
		if _, dup := seen[k.KeyID]; dup {
			return apperr.ErrDuplicatePrekeyID
		}
		seen[k.KeyID] = struct{}{}
	}
	return nil
}
