package postgres

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ephemeralRepo struct {
	db *gorm.DB
}

func (r *ephemeralRepo) Create(ctx context.Context, k *model.EphemeralKey) error {
	row := ephemeralRow{
		SenderID:    k.SenderID,
		RecipientID: k.RecipientID,
		PublicKey:   k.PublicKey,
		PrekeyID:    k.PrekeyID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return apperr.Infrastructure("create ephemeral key", err)
	}
	k.ID, k.CreatedAt = row.ID, row.CreatedAt
	return nil
}

func (r *ephemeralRepo) Latest(ctx context.Context, sender, recipient uuid.UUID) (*model.EphemeralKey, error) {
	var row ephemeralRow
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND recipient_id = ?", sender, recipient).
		Order("id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("latest ephemeral key", err)
	}
	return row.model(), nil
}
