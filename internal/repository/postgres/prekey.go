package postgres

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type prekeyRepo struct {
	db *gorm.DB
}

// allocate claims the lowest unused slot of owner. SKIP LOCKED lets
// concurrent claimers move on to the next slot instead of queueing behind a
// row another transaction is about to mark used.
func allocate(tx *gorm.DB, owner uuid.UUID) (*model.OneTimePrekey, error) {
	var row prekeyRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("user_id = ? AND used = ?", owner, false).
		Order("id").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&row).Update("used", true).Error; err != nil {
		return nil, err
	}
	row.Used = true
	return row.model(), nil
}

func (r *prekeyRepo) Allocate(ctx context.Context, owner uuid.UUID) (*model.OneTimePrekey, error) {
	var k *model.OneTimePrekey
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		k, err = allocate(tx, owner)
		return err
	})
	if err != nil {
		return nil, apperr.Infrastructure("allocate prekey", err)
	}
	return k, nil
}

func (r *prekeyRepo) ClaimBundle(ctx context.Context, owner uuid.UUID) (*model.PrekeyBundle, error) {
	var bundle *model.PrekeyBundle
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u userRow
		err := tx.Where("id = ?", owner).Take(&u).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		otk, err := allocate(tx, owner)
		if err != nil {
			return err
		}

		user := u.model()
		bundle = &model.PrekeyBundle{
			UserID:        user.ID,
			Handle:        user.Handle,
			IdentityKey:   user.IdentityKey,
			SignedPrekey:  user.SignedPrekey,
			OneTimePrekey: otk,
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Infrastructure("claim bundle", err)
	}
	return bundle, nil
}

func (r *prekeyRepo) Replenish(ctx context.Context, owner uuid.UUID, keys []model.PrekeyUpload) (model.ReplenishResult, error) {
	var res model.ReplenishResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			var slot prekeyRow
			// A slot another replenish holds is skipped, not waited on: after
			// its commit the slot is unused and the wait would end in an append.
			err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
				Where("user_id = ? AND used = ?", owner, true).
				Order("id").
				Take(&slot).Error
			switch {
			case err == nil:
				err = tx.Model(&slot).Updates(map[string]any{
					"key_id":     k.KeyID,
					"public_key": k.PublicKey,
					"used":       false,
				}).Error
				if err != nil {
					return err
				}
				res.Reused++
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := prekeyRow{UserID: owner, KeyID: k.KeyID, PublicKey: k.PublicKey}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				res.Appended++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.ReplenishResult{}, apperr.Infrastructure("replenish prekeys", err)
	}
	return res, nil
}

func (r *prekeyRepo) CountUnused(ctx context.Context, owner uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&prekeyRow{}).
		Where("user_id = ? AND used = ?", owner, false).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Infrastructure("count prekeys", err)
	}
	return int(n), nil
}
