package mongodb

import (
	"context"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type prekeyRepo struct {
	store      *Store
	collection *mongo.Collection
}

var lowestSlot = options.FindOneAndUpdate().
	SetSort(bson.D{{Key: "_id", Value: 1}}).
	SetReturnDocument(options.After)

func (r *prekeyRepo) Allocate(ctx context.Context, owner uuid.UUID) (*model.OneTimePrekey, error) {
	var doc prekeyDoc
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": owner.String(), "used": false},
		bson.M{"$set": bson.M{"used": true}},
		lowestSlot,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infrastructure("allocate prekey", err)
	}
	return doc.model(), nil
}

// ClaimBundle reads the user before allocating, so a missing user never
// consumes a prekey. Identity keys are immutable, which makes the read and
// the atomic allocation equivalent to one transaction.
func (r *prekeyRepo) ClaimBundle(ctx context.Context, owner uuid.UUID) (*model.PrekeyBundle, error) {
	u, err := r.store.Users().GetByID(ctx, owner)
	if err != nil {
		return nil, err
	}

	otk, err := r.Allocate(ctx, owner)
	if err != nil {
		return nil, err
	}

	return &model.PrekeyBundle{
		UserID:        u.ID,
		Handle:        u.Handle,
		IdentityKey:   u.IdentityKey,
		SignedPrekey:  u.SignedPrekey,
		OneTimePrekey: otk,
	}, nil
}

// Replenish is atomic per key, not per batch: each reuse is one
// FindOneAndUpdate and each append one insert.
func (r *prekeyRepo) Replenish(ctx context.Context, owner uuid.UUID, keys []model.PrekeyUpload) (model.ReplenishResult, error) {
	var res model.ReplenishResult
	for _, k := range keys {
		err := r.collection.FindOneAndUpdate(ctx,
			bson.M{"user_id": owner.String(), "used": true},
			bson.M{"$set": bson.M{"key_id": k.KeyID, "public_key": k.PublicKey, "used": false}},
			lowestSlot,
		).Err()
		if err == nil {
			res.Reused++
			continue
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return res, apperr.Infrastructure("reuse prekey slot", err)
		}

		slot, err := r.store.nextID(ctx, colPrekeys)
		if err != nil {
			return res, apperr.Infrastructure("next prekey slot", err)
		}
		_, err = r.collection.InsertOne(ctx, &prekeyDoc{
			Slot:      slot,
			UserID:    owner.String(),
			KeyID:     k.KeyID,
			PublicKey: k.PublicKey,
		})
		if err != nil {
			return res, apperr.Infrastructure("append prekey slot", err)
		}
		res.Appended++
	}
	return res, nil
}

func (r *prekeyRepo) CountUnused(ctx context.Context, owner uuid.UUID) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"user_id": owner.String(), "used": false})
	if err != nil {
		return 0, apperr.Infrastructure("count prekeys", err)
	}
	return int(n), nil
}
