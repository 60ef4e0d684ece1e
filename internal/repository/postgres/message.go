package postgres

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type messageRepo struct {
	db *gorm.DB
}

func (r *messageRepo) Create(ctx context.Context, e *model.Envelope) error {
	row := messageRow{
		SenderID:    e.SenderID,
		RecipientID: e.RecipientID,
		Kind:        string(e.Kind),
		Ciphertext:  e.Ciphertext,
		CreatedAt:   time.Now().UTC(),
	}
	// The pair lock makes ids of one sender/recipient pair commit in
	// order, so a drain never sees a later envelope before an earlier one.
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pair := e.SenderID.String() + ":" + e.RecipientID.String()
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", pair).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return apperr.Infrastructure("create message", err)
	}
	e.ID, e.CreatedAt = row.ID, row.CreatedAt
	e.Delivered, e.Read = false, false
	return nil
}

func (r *messageRepo) Get(ctx context.Context, id int64) (*model.Envelope, error) {
	var row messageRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrMessageNotFound
	}
	if err != nil {
		return nil, apperr.Infrastructure("get message", err)
	}
	e := row.model()
	return &e, nil
}

func (r *messageRepo) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&messageRow{}).
			Where("id = ? AND delivered = ?", id, false).
			Update("delivered", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			changed = true
			return nil
		}

		var n int64
		if err := tx.Model(&messageRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.ErrMessageNotFound
		}
		return nil
	})
	if err != nil {
		return false, apperr.Infrastructure("mark delivered", err)
	}
	return changed, nil
}

func (r *messageRepo) MarkRead(ctx context.Context, sender, recipient uuid.UUID) (int, error) {
	res := r.db.WithContext(ctx).Model(&messageRow{}).
		Where("sender_id = ? AND recipient_id = ? AND read = ?", sender, recipient, false).
		Updates(map[string]any{"read": true, "delivered": true})
	if res.Error != nil {
		return 0, apperr.Infrastructure("mark read", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *messageRepo) DrainUndelivered(ctx context.Context, recipient, sender uuid.UUID) ([]model.Envelope, error) {
	var rows []messageRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("recipient_id = ? AND sender_id = ? AND delivered = ?", recipient, sender, false).
			Order("id").
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}

		ids := make([]int64, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		return tx.Model(&messageRow{}).Where("id IN ?", ids).Update("delivered", true).Error
	})
	if err != nil {
		return nil, apperr.Infrastructure("drain undelivered", err)
	}

	res := make([]model.Envelope, len(rows))
	for i := range rows {
		res[i] = rows[i].model()
		res[i].Delivered = true
	}
	return res, nil
}

func (r *messageRepo) History(ctx context.Context, a, b uuid.UUID, beforeID int64, limit int) ([]model.Envelope, error) {
	q := r.db.WithContext(ctx).
		Where("((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))", a, b, b, a)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var rows []messageRow
	if err := q.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, apperr.Infrastructure("history", err)
	}

	res := make([]model.Envelope, len(rows))
	for i := range rows {
		res[i] = rows[i].model()
	}
	return res, nil
}

func (r *messageRepo) CountUndelivered(ctx context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error) {
	var counts []struct {
		SenderID uuid.UUID
		N        int64
	}
	err := r.db.WithContext(ctx).Model(&messageRow{}).
		Select("sender_id, count(*) AS n").
		Where("recipient_id = ? AND delivered = ?", recipient, false).
		Group("sender_id").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Infrastructure("count undelivered", err)
	}

	res := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		res[c.SenderID] = c.N
	}
	return res, nil
}
