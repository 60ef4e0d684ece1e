// Package account registers identities and maintains their published keys.
package account

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"
	"e2e_relay/internal/service/prekey"
	"e2e_relay/internal/utils/log"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type (
	Registration struct {
		Handle       string               `json:"handle"`
		IdentityKey  []byte               `json:"identity_key"`
		SignedPrekey model.SignedPrekey   `json:"signed_prekey"`
		Prekeys      []model.PrekeyUpload `json:"prekeys"`
	}

	Service struct {
		users   repository.UserRepository
		prekeys *prekey.Service
	}
)

func NewService(users repository.UserRepository, prekeys *prekey.Service) *Service {
	return &Service{users: users, prekeys: prekeys}
}

// Register creates the user and uploads the initial prekey batch, if any. A
// failed upload leaves the user registered with an empty pool, which the
// client fills through the regular replenish call.
func (s *Service) Register(ctx context.Context, reg Registration) (*model.User, error) {
	handle := model.NormalizeHandle(reg.Handle)
	if !model.ValidHandle(handle) {
		return nil, apperr.ErrInvalidHandle
	}
	if len(reg.IdentityKey) == 0 || len(reg.IdentityKey) > model.MaxIdentityKeyLen {
		return nil, apperr.ErrInvalidIdentityKey
	}
	if err := validSignedPrekey(reg.SignedPrekey); err != nil {
		return nil, err
	}

	u := &model.User{
		Handle:       handle,
		IdentityKey:  reg.IdentityKey,
		SignedPrekey: reg.SignedPrekey,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	log.Info("user registered", zap.String("handle", u.Handle), zap.String("id", u.ID.String()))

	if len(reg.Prekeys) > 0 {
		if _, err := s.prekeys.Replenish(ctx, u.ID, reg.Prekeys); err != nil {
			return u, err
		}
	}
	return u, nil
}

func (s *Service) Lookup(ctx context.Context, handle string) (*model.User, error) {
	return s.users.GetByHandle(ctx, model.NormalizeHandle(handle))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// RotateSignedPrekey replaces the signed prekey of user. Bundles fetched
// earlier keep working until the owner discards the old private key.
func (s *Service) RotateSignedPrekey(ctx context.Context, user uuid.UUID, spk model.SignedPrekey) error {
	if err := validSignedPrekey(spk); err != nil {
		return err
	}
	return s.users.UpdateSignedPrekey(ctx, user, spk)
}

func validSignedPrekey(spk model.SignedPrekey) error {
	if !model.ValidPublicKey(spk.PublicKey) {
		return apperr.ErrInvalidKey
	}
	if len(spk.Signature) == 0 {
		return apperr.ErrInvalidSignature
	}
	return nil
}
