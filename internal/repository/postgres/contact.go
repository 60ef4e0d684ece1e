package postgres

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"
	"e2e_relay/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contactRepo struct {
	db *gorm.DB
}

func (r *contactRepo) Get(ctx context.Context, a, b uuid.UUID) (*model.Contact, error) {
	lo, hi := model.PairKey(a, b)
	var row contactRow
	err := r.db.WithContext(ctx).Where("user_lo = ? AND user_hi = ?", lo, hi).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("get contact", err)
	}
	return row.model(), nil
}

// update locks the row selected by where, runs fn and writes its result.
// Two first-time requests for the same pair can both see no row; the loser
// hits the pair index and retries once, now seeing the winner's row.
func (r *contactRepo) update(ctx context.Context, fn repository.ContactTransition, where string, args ...any) (*model.Contact, error) {
	var next *model.Contact
	txn := func(tx *gorm.DB) error {
		var cur *model.Contact
		var row contactRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(where, args...).Take(&row).Error
		switch {
		case err == nil:
			cur = row.model()
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		next, err = fn(cur)
		if err != nil {
			return err
		}

		out := toContactRow(next)
		if out.ID == 0 {
			err = tx.Create(out).Error
		} else {
			err = tx.Save(out).Error
		}
		if err != nil {
			return err
		}
		next.ID = out.ID
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(txn)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = r.db.WithContext(ctx).Transaction(txn)
	}
	if err != nil {
		return nil, apperr.Infrastructure("update contact", err)
	}
	return next, nil
}

func (r *contactRepo) UpdatePair(ctx context.Context, a, b uuid.UUID, fn repository.ContactTransition) (*model.Contact, error) {
	lo, hi := model.PairKey(a, b)
	return r.update(ctx, fn, "user_lo = ? AND user_hi = ?", lo, hi)
}

func (r *contactRepo) UpdateByID(ctx context.Context, id int64, fn repository.ContactTransition) (*model.Contact, error) {
	return r.update(ctx, fn, "id = ?", id)
}

func (r *contactRepo) ListByUser(ctx context.Context, user uuid.UUID, statuses ...model.ContactStatus) ([]model.Contact, error) {
	q := r.db.WithContext(ctx).Where("(requester_id = ? OR recipient_id = ?)", user, user)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var rows []contactRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, apperr.Infrastructure("list contacts", err)
	}

	res := make([]model.Contact, len(rows))
	for i := range rows {
		res[i] = *rows[i].model()
	}
	return res, nil
}
