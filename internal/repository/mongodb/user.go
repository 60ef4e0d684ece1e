package mongodb

import (
	"context"
	"time"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type userRepo struct {
	collection *mongo.Collection
}

func (r *userRepo) getOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Infrastructure("get user", err)
	}
	return doc.model(), nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, bson.M{"_id": id.String()})
}

func (r *userRepo) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	return r.getOne(ctx, bson.M{"handle": handle})
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.User, error) {
	res := make(map[uuid.UUID]*model.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	cur, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, apperr.Infrastructure("get users", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperr.Infrastructure("get users", err)
	}
	for i := range docs {
		u := docs[i].model()
		res[u.ID] = u
	}
	return res, nil
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.collection.InsertOne(ctx, &userDoc{
		ID:          user.ID.String(),
		Handle:      user.Handle,
		IdentityKey: user.IdentityKey,
		SignedPrekey: signedPrekeyDoc{
			KeyID:     user.SignedPrekey.KeyID,
			PublicKey: user.SignedPrekey.PublicKey,
			Signature: user.SignedPrekey.Signature,
		},
		CreatedAt: user.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrHandleTaken
	}
	return apperr.Infrastructure("create user", err)
}

func (r *userRepo) UpdateSignedPrekey(ctx context.Context, id uuid.UUID, spk model.SignedPrekey) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"signed_prekey": signedPrekeyDoc{
			KeyID:     spk.KeyID,
			PublicKey: spk.PublicKey,
			Signature: spk.Signature,
		}}},
	)
	if err != nil {
		return apperr.Infrastructure("update signed prekey", err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}
