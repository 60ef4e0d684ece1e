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

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Create(toUserRow(u)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.ErrHandleTaken
	}
	return apperr.Infrastructure("create user", err)
}

func (r *userRepo) get(ctx context.Context, query string, arg any) (*model.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Infrastructure("get user", err)
	}
	return row.model(), nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.get(ctx, "id = ?", id)
}

func (r *userRepo) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	return r.get(ctx, "handle = ?", handle)
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	res := make(map[uuid.UUID]*model.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	var rows []userRow
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Infrastructure("get users", err)
	}
	for i := range rows {
		res[rows[i].ID] = rows[i].model()
	}
	return res, nil
}

func (r *userRepo) UpdateSignedPrekey(ctx context.Context, id uuid.UUID, spk model.SignedPrekey) error {
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
		"signed_prekey_id":  spk.KeyID,
		"signed_prekey":     spk.PublicKey,
		"signed_prekey_sig": spk.Signature,
	})
	if res.Error != nil {
		return apperr.Infrastructure("update signed prekey", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}
